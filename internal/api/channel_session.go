package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
	"github.com/nerrad567/gray-logic-hub/internal/session"
)

// maxCloseReason is the longest close frame reason a control frame can carry.
const maxCloseReason = 123

// sessionStore routes session values through the ingest pipeline so they
// reach history, telemetry and the event hub like every other value.
type sessionStore struct {
	*automation.Store
	pipeline *ingest.Pipeline
}

func (s sessionStore) UpdateValue(ch rule.Channel, value float64) bool {
	return s.pipeline.OnChannelValue(context.Background(), ch.DeviceID, ch.ChannelID, value, device.ValueSourceSession)
}

// handleChannelSession upgrades to a channel session for one device channel.
//
// Inbound frames carry values: a JSON number or {"value": n}. Outbound
// frames are "updateMe", "notRequired", "reconnect" or a bare number the
// device should apply. A terminal response is followed by a close frame.
func (s *Server) handleChannelSession(w http.ResponseWriter, r *http.Request) {
	ch := rule.NewChannel(chi.URLParam(r, "deviceId"), chi.URLParam(r, "channelId"))
	if !ch.Valid() {
		writeBadRequest(w, "deviceId and channelId must be alphanumeric")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("channel session upgrade failed", "channel", ch.String(), "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
	}

	sess := session.New(sessionStore{Store: s.store, pipeline: s.pipeline}, ch)
	log := s.logger.With("channel", ch.String())
	sess.SetLogger(log)

	runChannelSession(s.sessionCtx, conn, sess, s.wsCfg, log)
}

// runChannelSession drives sess from conn until either side ends it.
// Only this goroutine calls sess.Next and writes data frames.
func runChannelSession(ctx context.Context, conn *websocket.Conn, sess *session.Session, cfg config.WebSocketConfig, log *logging.Logger) {
	defer conn.Close()
	defer sess.Close()

	pingInterval, pongWait, maxSize := wsTimings(cfg)

	done := make(chan struct{})
	defer close(done)

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		conn.SetReadLimit(maxSize)
		//nolint:errcheck // Best-effort deadline on connection setup
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			//nolint:errcheck // Best-effort deadline reset
			conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
			select {
			case frames <- msg:
			case <-done:
				return
			}
		}
	}()

	write := func(resp session.Response) bool {
		if resp.IsNone() {
			return true
		}
		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(pongWait))
		if err := conn.WriteMessage(websocket.TextMessage, responseFrame(resp)); err != nil {
			log.Debug("channel session write failed", "error", err)
			return false
		}
		if resp.Terminal() {
			closeSession(conn, websocket.CloseNormalClosure, resp.Wire(), pongWait)
			return false
		}
		return true
	}

	// step applies one turn's outcome and reports whether to continue.
	step := func(resp session.Response, err error) bool {
		switch {
		case err == nil:
			return write(resp)
		case errors.Is(err, session.ErrNoValue):
			log.Warn("channel session frame carried no value")
			return true
		case errors.Is(err, session.ErrUnknownChannel):
			log.Warn("channel session for unknown channel", "error", err)
			closeSession(conn, websocket.ClosePolicyViolation, "unknown device or channel", pongWait)
			return false
		default:
			log.Debug("channel session ended", "error", err)
			return false
		}
	}

	if !step(sess.Next(session.Event{Kind: session.EventOpened})) {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var (
			resp session.Response
			err  error
		)

		select {
		case msg := <-frames:
			ev := session.Event{Kind: session.EventMessage}
			if v, parseErr := ingest.ParseValue(msg); parseErr == nil {
				ev = session.Message(v)
			}
			resp, err = sess.Next(ev)

		case <-sess.Notify():
			resp, err = sess.Next(session.Event{Kind: session.EventNotified})

		case rerr := <-readErr:
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("channel session read error", "error", rerr)
			}
			// The peer is gone; a reconnect hint is sent best effort.
			resp, err = sess.Next(session.Event{Kind: session.EventClosing})
			step(resp, err)
			return

		case <-ctx.Done():
			resp, err = sess.Next(session.Event{Kind: session.EventClosing})
			if step(resp, err) {
				closeSession(conn, websocket.CloseGoingAway, "hub shutting down", pongWait)
			}
			return

		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if werr := conn.WriteMessage(websocket.PingMessage, nil); werr != nil {
				return
			}
			continue
		}

		if !step(resp, err) {
			return
		}
	}
}

// responseFrame encodes a response: a bare number for update(value), a JSON
// string otherwise.
func responseFrame(resp session.Response) []byte {
	if resp.Kind == session.ResponseUpdate {
		return []byte(resp.Wire())
	}
	b, _ := json.Marshal(resp.Wire()) //nolint:errcheck // marshalling a string cannot fail
	return b
}

func closeSession(conn *websocket.Conn, code int, reason string, wait time.Duration) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	//nolint:errcheck // Best-effort close frame
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wait))
}
