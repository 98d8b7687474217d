package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// recordingRequester captures outbound requests.
type recordingRequester struct {
	mu   sync.Mutex
	reqs []device.Request
}

func (r *recordingRequester) Do(_ context.Context, req device.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recordingRequester) snapshot() []device.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Request(nil), r.reqs...)
}

type testEnv struct {
	srv       *Server
	router    http.Handler
	registry  *device.Registry
	store     *automation.Store
	requester *recordingRequester
	metrics   *metrics.Metrics
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server over a real registry, store and in-memory
// value history.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	history := device.NewSQLiteValueHistoryRepository(db.DB)

	log := testLogger()
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log)
	m := metrics.New()

	registry := device.NewRegistry()
	requester := &recordingRequester{}
	store := automation.NewStore(registry, requester,
		automation.WithHub(hub),
		automation.WithRecorder(m),
	)
	t.Cleanup(func() { store.Close() })

	pipeline := ingest.NewPipeline(store,
		ingest.WithHistory(history),
		ingest.WithHub(hub),
		ingest.WithRecorder(m),
	)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:          wsCfg,
		Logger:      log,
		Registry:    registry,
		Store:       store,
		Pipeline:    pipeline,
		History:     history,
		Metrics:     m,
		DB:          db,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		registry:  registry,
		store:     store,
		requester: requester,
		metrics:   m,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// registerDevices registers the outlet, lamp and motion fixtures.
func (e *testEnv) registerDevices(t *testing.T) {
	t.Helper()
	bodies := []string{
		`{"id":"outlet","channels":["power"],"subscribe":"http://outlet.local/connect/<CHANNEL>"}`,
		`{"id":"lamp","channels":["on","level"],"subscribe":"http://lamp.local/connect/<CHANNEL>","update":"http://lamp.local/set/<CHANNEL>/<VALUE>"}`,
		`{"id":"motion","channels":["detected"],"subscribe":"mqtt://graylogic/motion/<CHANNEL>"}`,
	}
	for _, b := range bodies {
		if w := e.do(t, http.MethodPost, "/api/v1/devices", b); w.Code != http.StatusCreated {
			t.Fatalf("register device status = %d, body = %s", w.Code, w.Body.String())
		}
	}
}

func (e *testEnv) addAutomation(t *testing.T, text string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"automation": text})
	w := e.do(t, http.MethodPost, "/api/v1/automations", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("add automation status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp automationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.ID
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─── Server Lifecycle ──────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without registry should fail")
	}
	if _, err := New(Deps{Logger: testLogger(), Registry: device.NewRegistry()}); err == nil {
		t.Error("New() without store should fail")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.Port = 19180

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", env.srv.cfg.Port)
	waitFor(t, "server to listen", func() bool {
		resp, err := http.Get(addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get(addr); err == nil {
		t.Error("server still responding after Close()")
	}
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/automations", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)
	if w := env.do(t, http.MethodGet, "/api/v1/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestRegisterDevice(t *testing.T) {
	env := testServer(t)

	body := `{"id":"lamp","channels":["on"],"subscribe":"http://lamp.local/connect/<CHANNEL>","update":"http://lamp.local/set/<CHANNEL>/<VALUE>"}`
	w := env.do(t, http.MethodPost, "/api/v1/devices", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var def device.Definition
	if err := json.NewDecoder(w.Body).Decode(&def); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if def.ID != "lamp" || len(def.Channels) != 1 || def.Update == "" {
		t.Errorf("definition = %+v", def)
	}
	if _, ok := env.registry.Get("lamp"); !ok {
		t.Error("device not in registry")
	}
}

func TestRegisterDevice_Duplicate(t *testing.T) {
	env := testServer(t)
	body := `{"id":"lamp","channels":["on"],"subscribe":"http://lamp.local/connect/<CHANNEL>"}`

	if w := env.do(t, http.MethodPost, "/api/v1/devices", body); w.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/devices", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeDuplicateDevice {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeDuplicateDevice)
	}
}

func TestRegisterDevice_Invalid(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid JSON", `{`, ErrCodeBadRequest},
		{"bad id", `{"id":"my-lamp","channels":["on"],"subscribe":"http://x/<CHANNEL>"}`, ErrCodeValidation},
		{"no channels", `{"id":"lamp","channels":[],"subscribe":"http://x/<CHANNEL>"}`, ErrCodeValidation},
		{"bad scheme", `{"id":"lamp","channels":["on"],"subscribe":"ftp://x/<CHANNEL>"}`, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if e := decodeError(t, w); e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestListAndGetDevices(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)

	w := env.do(t, http.MethodGet, "/api/v1/devices", "")
	var list struct {
		Devices []device.Definition `json:"devices"`
		Count   int                 `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 3 || list.Devices[0].ID != "lamp" {
		t.Errorf("list = %+v, want 3 devices sorted by id", list)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/devices/outlet", ""); w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/devices/ghost", ""); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}
}

// ─── Automations ───────────────────────────────────────────────────

func TestAddAutomation(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)

	w := env.do(t, http.MethodPost, "/api/v1/automations", `{"automation":"outlet:power > 100 --> lamp:on = 1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp automationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Error("automation id is empty")
	}
	if resp.Automation != "outlet:power > 100 --> lamp:on = 1" {
		t.Errorf("automation = %q", resp.Automation)
	}

	// outlet:power has no value yet, so the hub asks the outlet to connect.
	waitFor(t, "connect request", func() bool { return len(env.requester.snapshot()) == 1 })
	req := env.requester.snapshot()[0]
	if req.Kind != device.RequestConnect || req.URL != "http://outlet.local/connect/power" {
		t.Errorf("request = %s", req)
	}
}

func TestAddAutomation_Errors(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid JSON", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty", `{"automation":"  "}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"no arrow", `{"automation":"outlet:power > 100 lamp:on = 1"}`, http.StatusBadRequest, ErrCodeInvalidRule},
		{"bad comparator", `{"automation":"outlet:power ~ 100 --> lamp:on = 1"}`, http.StatusBadRequest, ErrCodeInvalidRule},
		{"unknown device", `{"automation":"heater:temp > 1 --> lamp:on = 1"}`, http.StatusUnprocessableEntity, ErrCodeRegistration},
		{"unknown channel", `{"automation":"outlet:voltage > 1 --> lamp:on = 1"}`, http.StatusUnprocessableEntity, ErrCodeRegistration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/automations", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if e := decodeError(t, w); e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}

	if env.store.Count() != 0 {
		t.Errorf("store count = %d, want 0 after rejected rules", env.store.Count())
	}
}

func TestAutomationLifecycle(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)

	first := env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")
	second := env.addAutomation(t, "motion:detected == 1 --> lamp:level = 80")

	w := env.do(t, http.MethodGet, "/api/v1/automations", "")
	var list struct {
		Automations []automationResponse `json:"automations"`
		Count       int                  `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 2 || list.Automations[0].ID != first || list.Automations[1].ID != second {
		t.Errorf("list = %+v, want insertion order", list)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/automations/"+first, ""); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/automations/"+first, ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/automations/"+first, ""); w.Code != http.StatusNotFound {
		t.Errorf("get removed status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/automations/"+first, ""); w.Code != http.StatusNotFound {
		t.Errorf("delete removed status = %d, want 404", w.Code)
	}
}

func TestRequirements(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = motion:detected")

	w := env.do(t, http.MethodGet, "/api/v1/requirements", "")
	var req automation.Requirements
	if err := json.NewDecoder(w.Body).Decode(&req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(req.Registered) != 3 {
		t.Errorf("registered = %v, want 3 channels", req.Registered)
	}
	if len(req.Subscribed) != 1 || req.Subscribed[0].String() != "outlet:power" {
		t.Errorf("subscribed = %v, want [outlet:power]", req.Subscribed)
	}
	if len(req.Connected) != 2 {
		t.Errorf("connected = %v, want outlet:power and lamp:on", req.Connected)
	}
}

// ─── Channel Values ────────────────────────────────────────────────

func postValue(t *testing.T, env *testEnv, body string) (int, string) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/channel", body)
	var reception string
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&reception); err != nil {
			t.Fatalf("decode reception: %v", err)
		}
	}
	return w.Code, reception
}

func TestChannelValue_Reception(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)

	code, reception := postValue(t, env, `{"deviceId":"outlet","channelId":"power","value":150}`)
	if code != http.StatusOK || reception != "notRequired" {
		t.Fatalf("before automation = %d %q, want 200 notRequired", code, reception)
	}

	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")

	code, reception = postValue(t, env, `{"deviceId":"outlet","channelId":"power","value":150}`)
	if code != http.StatusOK || reception != "ok" {
		t.Fatalf("after automation = %d %q, want 200 ok", code, reception)
	}

	// lamp has no session, so the rule result goes out as an update request.
	waitFor(t, "update request", func() bool {
		for _, r := range env.requester.snapshot() {
			if r.Kind == device.RequestUpdate && r.URL == "http://lamp.local/set/on/1.000000" {
				return true
			}
		}
		return false
	})

	// lamp:on is only a target: its value is not read, but a session is wanted.
	code, reception = postValue(t, env, `{"deviceId":"lamp","channelId":"on","value":1}`)
	if code != http.StatusOK || reception != "reconnect" {
		t.Fatalf("target channel = %d %q, want 200 reconnect", code, reception)
	}

	scrape := env.do(t, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(scrape, `graylogic_hub_ingest_messages_total{source="http",status="accepted"} 1`) {
		t.Errorf("accepted http ingest not counted:\n%s", scrape)
	}
}

func TestChannelValue_BadRequests(t *testing.T) {
	env := testServer(t)

	for _, body := range []string{
		`{`,
		`{"deviceId":"out-let","channelId":"power","value":1}`,
		`{"deviceId":"outlet","channelId":"power"}`,
	} {
		if code, _ := postValue(t, env, body); code != http.StatusBadRequest {
			t.Errorf("body %s status = %d, want 400", body, code)
		}
	}
}

func TestChannelHistory(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")

	for _, v := range []string{"90", "120", "130"} {
		postValue(t, env, `{"deviceId":"outlet","channelId":"power","value":`+v+`}`)
	}

	w := env.do(t, http.MethodGet, "/api/v1/channels/outlet/power/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		History []device.ValueHistoryEntry `json:"history"`
		Count   int                        `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.History[0].Value != 130 {
		t.Errorf("history = %+v, want newest first, limited to 2", resp.History)
	}
	if resp.History[0].Source != device.ValueSourceHTTP {
		t.Errorf("source = %q, want %q", resp.History[0].Source, device.ValueSourceHTTP)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/channels/outlet/voltage/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/channels/outlet/power/history?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/channels/outlet/power/history?since=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", w.Code)
	}

	env.srv.history = nil
	if w := env.do(t, http.MethodGet, "/api/v1/channels/outlet/power/history", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no history status = %d, want 503", w.Code)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestSystemMetrics(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Hub.Devices != 3 || m.Hub.Automations != 1 || m.Hub.SubscribedChannels != 1 {
		t.Errorf("hub metrics = %+v", m.Hub)
	}
	if m.Database == nil {
		t.Error("database metrics missing")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines = 0")
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := testServer(t)
	env.registerDevices(t)
	env.addAutomation(t, "outlet:power > 100 --> lamp:on = 1")

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "graylogic_hub_automations_active 1") {
		t.Errorf("active automations gauge missing from scrape:\n%s", w.Body.String())
	}
}
