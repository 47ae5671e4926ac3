package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/status"
)

type powerCall struct {
	event string
	woken []string
}

type testServer struct {
	srv     *Server
	tracker *status.Tracker
	driver  *keys.Driver
	chip    *gpio.FakeChip
	power   []powerCall
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{chip: gpio.NewFakeChip()}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.tracker = status.NewTracker(start, status.Config{
		Instance:    "panel",
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPPort:    ":80",
	})

	descs := []keys.Descriptor{
		{Label: "power", Type: input.TypeKey, Code: 116, Offset: 1, Wakeup: true},
		{Label: "vol-up", Type: input.TypeKey, Code: 115, Offset: 2, CanDisable: true},
		{Label: "vol-down", Type: input.TypeKey, Code: 114, Offset: 3, CanDisable: true},
		{Label: "lid", Type: input.TypeSwitch, Code: 0, Offset: 4, CanDisable: true},
	}
	d, err := keys.New(descs, keys.Options{Name: "panel", Chip: ts.chip, Sink: ts.tracker})
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	ts.driver = d
	ts.tracker.SetSource(d)

	ts.srv = New(ts.tracker, d, Options{
		Version: "1.0.0",
		OnPower: func(event string, woken []string) {
			ts.power = append(ts.power, powerCall{event, woken})
		},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestJSONEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.tracker.SetMQTTConnected(true)

	req := httptest.NewRequest(http.MethodGet, "/index.json", nil)
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Instance != "panel" || sj.Status.Power != "active" {
		t.Errorf("header: got %q/%q", sj.Status.Instance, sj.Status.Power)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(sj.Status.Lines) != 4 {
		t.Errorf("lines: got %d, want 4", len(sj.Status.Lines))
	}
	if !sj.Status.MayWake {
		t.Error("expected may_wake=true")
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts := newTestServer(t)

	ts.chip.SetLevel(2, true)
	ts.driver.Flush()

	_, body := ts.do(t, http.MethodGet, "/index.json", "")
	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.Lines[1].Pressed {
		t.Error("vol-up should be pressed")
	}
	if len(sj.Status.Counts) != 1 || sj.Status.Counts[0].Code != 115 || sj.Status.Counts[0].Press != 1 {
		t.Errorf("counts: got %+v", sj.Status.Counts)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/", "/index.html"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := ts.srv.app.Test(req, -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		if !strings.Contains(string(body), "vol-down") {
			t.Errorf("%s should list the lines", path)
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts := newTestServer(t)

	if code, _ := ts.do(t, http.MethodGet, "/nonexistent", ""); code != 404 {
		t.Errorf("status: got %d, want 404", code)
	}
	if code, _ := ts.do(t, http.MethodGet, "/keys/joystick", ""); code != 404 {
		t.Errorf("unknown type: got %d, want 404", code)
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/health", "")
	if code != 200 || !strings.Contains(body, `"power":"active"`) {
		t.Errorf("health: %d %s", code, body)
	}
	code, body = ts.do(t, http.MethodGet, "/version", "")
	if code != 200 || !strings.Contains(body, `"version":"1.0.0"`) {
		t.Errorf("version: %d %s", code, body)
	}
}

func TestListEndpoints(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/keys/key", "114-116\n"},
		{"/keys/switch", "0\n"},
		{"/disableable/key", "114-115\n"},
		{"/disabled/key", "\n"},
		{"/wakeup/key", "116\n"},
	}
	for _, tt := range tests {
		code, body := ts.do(t, http.MethodGet, tt.path, "")
		if code != 200 || body != tt.want {
			t.Errorf("GET %s: got %d %q, want 200 %q", tt.path, code, body, tt.want)
		}
	}
}

func TestPutDisabled(t *testing.T) {
	ts := newTestServer(t)

	if code, body := ts.do(t, http.MethodPut, "/disabled/key", "114-115\n"); code != http.StatusNoContent {
		t.Fatalf("PUT: got %d %s", code, body)
	}
	if _, body := ts.do(t, http.MethodGet, "/disabled/key", ""); body != "114-115\n" {
		t.Errorf("disabled after PUT: got %q", body)
	}
	if !ts.chip.Line(2).Masked() || !ts.chip.Line(3).Masked() {
		t.Error("disabled lines should be masked")
	}

	if code, _ := ts.do(t, http.MethodPut, "/disabled/key", ""); code != http.StatusNoContent {
		t.Errorf("empty PUT: got %d", code)
	}
	if ts.chip.Line(2).Masked() {
		t.Error("empty set should enable every line")
	}
}

func TestPutDisabledErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"syntax", "/disabled/key", "1-x", http.StatusBadRequest},
		{"range", "/disabled/switch", "20", http.StatusBadRequest},
		{"policy", "/disabled/key", "115,116", http.StatusConflict},
		{"abs", "/disabled/abs", "1", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := ts.do(t, http.MethodPut, tt.path, tt.body); code != tt.want {
				t.Errorf("got %d %q, want %d", code, body, tt.want)
			}
		})
	}
	if _, body := ts.do(t, http.MethodGet, "/disabled/key", ""); body != "\n" {
		t.Errorf("rejected requests must not change the set, got %q", body)
	}
}

func TestWakeupEndpoint(t *testing.T) {
	ts := newTestServer(t)

	if code, body := ts.do(t, http.MethodPost, "/wakeup/key/115/enable", ""); code != http.StatusNoContent {
		t.Fatalf("enable: got %d %s", code, body)
	}
	if code, _ := ts.do(t, http.MethodPost, "/wakeup/key/116/disable", ""); code != http.StatusNoContent {
		t.Fatalf("disable: got %d", code)
	}
	if _, body := ts.do(t, http.MethodGet, "/wakeup/key", ""); body != "115\n" {
		t.Errorf("wakeup set: got %q", body)
	}

	if code, _ := ts.do(t, http.MethodPost, "/wakeup/key/77/enable", ""); code != http.StatusNotFound {
		t.Errorf("unknown code: got %d, want 404", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/wakeup/key/x/enable", ""); code != http.StatusBadRequest {
		t.Errorf("bad code: got %d, want 400", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/wakeup/key/115/toggle", ""); code != http.StatusNotFound {
		t.Errorf("bad action: got %d, want 404", code)
	}
}

func TestPowerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/power/suspend", "")
	if code != 200 {
		t.Fatalf("suspend: got %d %s", code, body)
	}
	if ts.driver.Power() != keys.PowerSuspended {
		t.Errorf("power: got %v, want suspended", ts.driver.Power())
	}
	if code, _ := ts.do(t, http.MethodPost, "/wakeup/key/115/enable", ""); code != http.StatusConflict {
		t.Errorf("wake change while suspended: got %d, want 409", code)
	}

	code, body = ts.do(t, http.MethodPost, "/power/resume", "")
	if code != 200 {
		t.Fatalf("resume: got %d %s", code, body)
	}
	var res PowerResult
	if err := json.Unmarshal([]byte(body), &res); err != nil || res.Action != "resume" {
		t.Errorf("resume reply: %q %v", body, err)
	}
	if ts.driver.Power() != keys.PowerActive {
		t.Errorf("power: got %v, want active", ts.driver.Power())
	}

	if len(ts.power) != 2 || ts.power[0].event != "SUSPEND" || ts.power[1].event != "RESUME" {
		t.Errorf("power callbacks: got %+v", ts.power)
	}
	if code, _ := ts.do(t, http.MethodPost, "/power/hibernate", ""); code != http.StatusNotFound {
		t.Errorf("unknown action: got %d, want 404", code)
	}
}

func TestSuspendRefusedWhileHeld(t *testing.T) {
	chip := gpio.NewFakeChip()
	tracker := status.NewTracker(time.Now(), status.Config{})
	d, err := keys.New([]keys.Descriptor{
		{Label: "power", Type: input.TypeKey, Code: 116, Offset: 1, Wakeup: true, Debounce: time.Hour},
	}, keys.Options{Chip: chip, Sink: tracker})
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	defer d.Close()
	srv := New(tracker, d, Options{})

	// The edge holds the wake lock until its debounce window closes.
	chip.SetLevel(1, true)
	req := httptest.NewRequest(http.MethodPost, "/power/suspend", nil)
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("suspend with hold: got %d, want 409", resp.StatusCode)
	}
}
