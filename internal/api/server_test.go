package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/envsort/envsort-core/internal/controller"
	"github.com/envsort/envsort-core/internal/infrastructure/config"
	"github.com/envsort/envsort-core/internal/infrastructure/logging"
	"github.com/envsort/envsort-core/internal/session"
	"github.com/envsort/envsort-core/internal/timer"
	"github.com/envsort/envsort-core/internal/validate"
)

// Reference values created by validate.LoadReference defaults.
const (
	refChannel1 = "BCA0AAAAAAAAAAA1"
	refChannel2 = "BCA00000000000000000001"
	refChannel3 = "1234567890"
)

// ─── Test Fixture ───────────────────────────────────────────────────────────

type fixture struct {
	srv   *Server
	ctrl  *controller.SessionController
	clock *timer.VirtualScheduler
	ref   *validate.Reference
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func setupServer(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	ref, err := validate.LoadReference(filepath.Join(dir, "reference.json"))
	if err != nil {
		t.Fatalf("loading reference: %v", err)
	}

	clock := timer.NewVirtualScheduler(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	ctrl := controller.New(controller.Deps{
		Config: config.ControllerConfig{
			Scanners:           config.ScannerToggles{Scanner1: true, Scanner2: true, Scanner3: true},
			DebounceCooldownMS: 2000,
			FlushDelayMS:       120,
			FallbackTimeoutMS:  5000,
			DisplayResetMS:     2000,
			NoScanSentinel:     "NO_SCAN",
		},
		Timers:    clock,
		Validator: validate.New(ref),
		Sessions:  session.NewLog(dir),
		Now:       clock.Now,
	})

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:         config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		Logger:     testLogger(),
		Controller: ctrl,
		Reference:  ref,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.Hub() // handlers assume the hub exists

	// Run the controller loop so input endpoints are processed.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		//nolint:errcheck // loop exits on cancel
		ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{srv: srv, ctrl: ctrl, clock: clock, ref: ref}
}

// waitFor polls until the condition holds or the deadline passes.
func (f *fixture) waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// do routes a request through the full router and middleware chain.
func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

// ─── Health and Metrics ─────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decode(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleMetrics(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var metrics SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if metrics.Version != "test" {
		t.Errorf("version = %q, want test", metrics.Version)
	}
	if metrics.Runtime.Goroutines == 0 {
		t.Error("expected nonzero goroutine count")
	}
	if metrics.Controller.Running {
		t.Error("controller should not be running")
	}
	if metrics.Hardware != nil {
		t.Error("hardware metrics should be absent when no link is configured")
	}
}

// ─── Session Control ────────────────────────────────────────────────────────

func TestSessionStartStop(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/session/start", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	body := decode(t, rec)
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected session_id in response")
	}

	// Second start conflicts
	rec = f.do(t, http.MethodPost, "/api/v1/session/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Stop with no items: no file written
	rec = f.do(t, http.MethodPost, "/api/v1/session/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", rec.Code, http.StatusOK)
	}
	body = decode(t, rec)
	if body["file_path"] != "" {
		t.Errorf("file_path = %v, want empty for empty session", body["file_path"])
	}

	// Stop again: idempotent
	rec = f.do(t, http.MethodPost, "/api/v1/session/stop", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("repeat stop status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleStatus(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/api/v1/session/start", nil)

	rec := f.do(t, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decode(t, rec)
	ctrlStatus, ok := body["controller"].(map[string]any)
	if !ok {
		t.Fatalf("controller field missing: %v", body)
	}
	if ctrlStatus["running"] != true {
		t.Errorf("running = %v, want true", ctrlStatus["running"])
	}
}

// ─── Scanner Input ──────────────────────────────────────────────────────────

func TestInjectScanCompletesItem(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/api/v1/session/start", nil)

	for _, code := range []string{refChannel1, refChannel2, refChannel3} {
		rec := f.do(t, http.MethodPost, "/api/v1/input/scan", scanRequest{Code: code})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("scan %q status = %d, want %d", code, rec.Code, http.StatusAccepted)
		}
	}

	// Scans land asynchronously through the event queue
	f.waitFor(t, "item completion", func() bool {
		return f.ctrl.Status().ItemsCompleted == 1
	})
}

func TestInjectScanValidation(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/input/scan", scanRequest{Code: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty code status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/input/scan", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	f.srv.buildRouter().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestInjectKeys(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/api/v1/session/start", nil)

	rec := f.do(t, http.MethodPost, "/api/v1/input/keys", keysRequest{Text: refChannel3 + "\n"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("keys status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	f.waitFor(t, "item opened by flushed code", func() bool {
		return f.ctrl.Status().ItemState == controller.StateOpen
	})

	rec = f.do(t, http.MethodPost, "/api/v1/input/keys", keysRequest{Text: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCommissioningEndpoints(t *testing.T) {
	f := setupServer(t)

	// Without a hardware link the commands are dropped as no-ops, not
	// surfaced as errors.
	for _, path := range []string{
		"/api/v1/test/pass",
		"/api/v1/test/fail",
		"/api/v1/test/status",
	} {
		rec := f.do(t, http.MethodPost, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("POST %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
		if body := decode(t, rec); body["sent"] != true {
			t.Errorf("POST %s sent = %v, want true", path, body["sent"])
		}
	}
}

// ─── Settings and Reference ─────────────────────────────────────────────────

func TestSettingsRoundTrip(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}
	var settings validate.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decoding settings: %v", err)
	}
	if !settings.Scanner1 || !settings.Scanner2 || !settings.Scanner3 {
		t.Errorf("initial settings = %+v, want all enabled", settings)
	}

	update := validate.Settings{Scanner1: true, Scanner2: false, Scanner3: true}
	rec = f.do(t, http.MethodPut, "/api/v1/settings", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	if got := f.ctrl.Settings(); got != update {
		t.Errorf("Settings() = %+v, want %+v", got, update)
	}
}

func TestSettingsRejectedMidItem(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodPost, "/api/v1/session/start", nil)
	f.do(t, http.MethodPost, "/api/v1/input/scan", scanRequest{Code: refChannel2})
	f.waitFor(t, "item opened", func() bool {
		return f.ctrl.Status().ItemState == controller.StateOpen
	})

	rec := f.do(t, http.MethodPut, "/api/v1/settings", validate.Settings{Scanner1: true})
	if rec.Code != http.StatusConflict {
		t.Errorf("put status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestReferenceEndpoints(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/reference", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode(t, rec)
	if body["count"] != float64(3) {
		t.Errorf("count = %v, want the 3 default entries", body["count"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/reference/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d, want %d", rec.Code, http.StatusOK)
	}
	body = decode(t, rec)
	if body["reloaded"] != true {
		t.Errorf("reloaded = %v, want true", body["reloaded"])
	}
}

// ─── Dependency Degradation ─────────────────────────────────────────────────

func TestMissingDependenciesReportConfigured(t *testing.T) {
	f := setupServer(t)

	cases := []struct {
		name   string
		method string
		path   string
	}{
		{"sessions list", http.MethodGet, "/api/v1/sessions"},
		{"session items", http.MethodGet, "/api/v1/sessions/abc/items"},
		{"audit list", http.MethodGet, "/api/v1/audit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, nil)
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
		})
	}
}

func TestNewRequiresController(t *testing.T) {
	_, err := New(Deps{Logger: testLogger()})
	if err == nil {
		t.Fatal("expected error without controller")
	}
}

// ─── Hub ────────────────────────────────────────────────────────────────────

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{"item.result": {}},
	}
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Broadcast("item.result", map[string]any{"overall": "PASS"})
	hub.Broadcast("other.channel", map[string]any{"ignored": true})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding broadcast: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != "item.result" {
			t.Errorf("got %+v, want item.result event", msg)
		}
	default:
		t.Fatal("expected a broadcast message")
	}

	select {
	case data := <-client.send:
		t.Fatalf("unexpected second message: %s", data)
	default:
	}
}

