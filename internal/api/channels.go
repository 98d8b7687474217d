package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
	"github.com/nerrad567/gray-logic-hub/internal/session"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// channelValueRequest is the body of POST /channel.
type channelValueRequest struct {
	DeviceID  string   `json:"deviceId"`
	ChannelID string   `json:"channelId"`
	Value     *float64 `json:"value"`
}

// handleRequirements returns the registered, subscribed and connected
// channel sets.
func (s *Server) handleRequirements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Requirements())
}

// handleChannelValue accepts one value outside a session. The body is the
// reception vocabulary as a JSON string: "ok" when an automation needed the
// value, "reconnect" when the channel is only an automation target and
// should open a session, "notRequired" otherwise.
func (s *Server) handleChannelValue(w http.ResponseWriter, r *http.Request) {
	var req channelValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !rule.NewChannel(req.DeviceID, req.ChannelID).Valid() {
		writeBadRequest(w, "deviceId and channelId must be alphanumeric")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	ch := rule.NewChannel(req.DeviceID, req.ChannelID)
	accepted := s.pipeline.OnChannelValue(r.Context(), req.DeviceID, req.ChannelID, *req.Value, device.ValueSourceHTTP)
	writeJSON(w, http.StatusOK, session.ReceptionFor(accepted, s.store.MustBeConnected(ch)))
}

// handleChannelHistory returns recent accepted values of a channel.
//
// Query parameters:
//   - limit: number of entries (default 50, max 200)
//   - since: RFC3339 timestamp; only newer entries are returned
func (s *Server) handleChannelHistory(w http.ResponseWriter, r *http.Request) {
	ch := rule.NewChannel(chi.URLParam(r, "deviceId"), chi.URLParam(r, "channelId"))

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if _, err := s.registry.Binding(ch); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, device.ErrChannelNotFound) {
			writeNotFound(w, "channel not found")
			return
		}
		writeInternalError(w, "failed to resolve channel")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "value history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), ch, limit)
	if err != nil {
		s.logger.Error("failed to load value history", "channel", ch.String(), "error", err)
		writeInternalError(w, "failed to load value history")
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.CreatedAt.After(since) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  ch.DeviceID,
		"channel_id": ch.ChannelID,
		"history":    entries,
		"count":      len(entries),
	})
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
