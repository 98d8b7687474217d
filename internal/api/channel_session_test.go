package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
	"github.com/nerrad567/gray-logic-hub/internal/session"
)

// testContext returns a context that is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func dialSession(t *testing.T, ts *httptest.Server, deviceID, channelID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/v1/channel/"+deviceID+"/"+channelID), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return string(data)
}

// expectClose reads until the close frame and checks its code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close frame, got %v", err)
	}
	if closeErr.Code != code {
		t.Errorf("close code = %d, want %d", closeErr.Code, code)
	}
}

func TestChannelSession_InvalidChannel(t *testing.T) {
	env := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/channel/out-let/power", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChannelSession_NotRequired(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	for _, tc := range []struct{ device, channel string }{
		{"outlet", "power"}, // registered, no automation
		{"ghost", "power"},  // unknown device
	} {
		conn := dialSession(t, ts, tc.device, tc.channel)
		if got := readFrame(t, conn); got != `"notRequired"` {
			t.Errorf("%s:%s first frame = %s, want \"notRequired\"", tc.device, tc.channel, got)
		}
		expectClose(t, conn, websocket.CloseNormalClosure)
	}
}

func TestChannelSession_SubscribedSendsValues(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn := dialSession(t, ts, "outlet", "power")
	if got := readFrame(t, conn); got != `"updateMe"` {
		t.Fatalf("first frame = %s, want \"updateMe\"", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"value":150}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	// lamp:on has no session, so the hub sends its update template.
	waitFor(t, "lamp update request", func() bool {
		for _, r := range env.requester.snapshot() {
			if r.Kind == device.RequestUpdate && r.Channel.DeviceID == "lamp" {
				return true
			}
		}
		return false
	})

	waitFor(t, "session value in history", func() bool {
		entries, err := env.srv.history.GetHistory(testContext(t), rule.NewChannel("outlet", "power"), 1)
		return err == nil && len(entries) == 1 && entries[0].Source == device.ValueSourceSession
	})
}

func TestChannelSession_PushesAutomationValue(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:level = outlet:power / 2")
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn := dialSession(t, ts, "lamp", "level")

	// lamp:level is only an action target: the session opens silently and
	// stays open until an automation sets a value.
	waitFor(t, "lamp session attached", func() bool {
		b, err := env.registry.Binding(rule.NewChannel("lamp", "level"))
		return err == nil && b.Attached()
	})

	if code, reception := postValue(t, env, `{"deviceId":"outlet","channelId":"power","value":300}`); code != http.StatusOK || reception != string(session.ReceptionOK) {
		t.Fatalf("post = %d %q", code, reception)
	}

	if got := readFrame(t, conn); got != "150" {
		t.Errorf("pushed frame = %s, want 150", got)
	}
	for _, r := range env.requester.snapshot() {
		if r.Kind == device.RequestUpdate && r.Channel.DeviceID == "lamp" {
			t.Errorf("update request %s sent while a session was attached", r)
		}
	}
}

func TestChannelSession_AutomationRemoved(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	id := env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn := dialSession(t, ts, "lamp", "on")
	waitFor(t, "lamp session attached", func() bool {
		b, err := env.registry.Binding(rule.NewChannel("lamp", "on"))
		return err == nil && b.Attached()
	})

	if w := env.do(t, http.MethodDelete, "/api/v1/automations/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	if got := readFrame(t, conn); got != `"notRequired"` {
		t.Errorf("frame = %s, want \"notRequired\"", got)
	}
	expectClose(t, conn, websocket.CloseNormalClosure)
}

func TestChannelSession_ShutdownAsksReconnect(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")

	ctx, cancel := context.WithCancel(testContext(t))
	env.srv.sessionCtx = ctx
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn := dialSession(t, ts, "outlet", "power")
	if got := readFrame(t, conn); got != `"updateMe"` {
		t.Fatalf("first frame = %s, want \"updateMe\"", got)
	}

	cancel()

	if got := readFrame(t, conn); got != `"reconnect"` {
		t.Errorf("frame = %s, want \"reconnect\"", got)
	}
	expectClose(t, conn, websocket.CloseNormalClosure)
}

func TestChannelSession_FrameWithoutValue(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn := dialSession(t, ts, "outlet", "power")
	readFrame(t, conn)

	// A garbage frame is ignored; the session stays usable.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("120")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	waitFor(t, "value accepted", func() bool {
		v, ok := env.store.Value(rule.NewChannel("outlet", "power"))
		return ok && v == 120
	})
}

func TestResponseFrame(t *testing.T) {
	tests := []struct {
		resp session.Response
		want string
	}{
		{session.Update(2.5), "2.5"},
		{session.Update(-1), "-1"},
		{session.Response{Kind: session.ResponseUpdateMe}, `"updateMe"`},
		{session.Response{Kind: session.ResponseNotRequired}, `"notRequired"`},
		{session.Response{Kind: session.ResponseReconnect}, `"reconnect"`},
	}
	for _, tt := range tests {
		if got := string(responseFrame(tt.resp)); got != tt.want {
			t.Errorf("responseFrame(%s) = %s, want %s", tt.resp, got, tt.want)
		}
	}
}
