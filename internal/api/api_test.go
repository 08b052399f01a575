package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanicball-project/sanicrelay/internal/config"
	"github.com/sanicball-project/sanicrelay/internal/db"
	"github.com/sanicball-project/sanicrelay/internal/events"
	"github.com/sanicball-project/sanicrelay/internal/server"
)

type fakeMatch struct {
	snap server.Snapshot
}

func (f fakeMatch) Snapshot() server.Snapshot { return f.snap }

type fakeHistory struct {
	limit int
	err   error
}

func (f *fakeHistory) Recent(limit int) ([]db.Entry, error) {
	f.limit = limit
	return []db.Entry{{ID: 1, Type: "chat"}}, f.err
}

func (f *fakeHistory) Results(limit int) ([]db.RaceResult, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []db.RaceResult{{ID: 1, GUID: "g", RaceTime: 61.25, Position: 1}}, nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestPing(t *testing.T) {
	s := NewServer(config.DefaultConfig(), Options{Version: "test"})
	rec := get(t, s.Handler(), "/api/public/ping")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if got := rec.Header().Get("Server"); got != "sanicrelay" {
		t.Errorf("Server header = %q", got)
	}
}

func TestServerInfoIncludesMatch(t *testing.T) {
	match := fakeMatch{snap: server.Snapshot{
		Phase:   events.PhaseCountdown,
		MOTD:    "live motd",
		Clients: []server.ClientStatus{{GUID: "a"}, {GUID: "b"}},
	}}
	s := NewServer(config.DefaultConfig(), Options{Match: match})
	body := decode(t, get(t, s.Handler(), "/api/public/server_info"))

	if body["name"] != "Sanicball Server" {
		t.Errorf("name = %v", body["name"])
	}
	if body["phase"] != "countdown" || body["motd"] != "live motd" {
		t.Errorf("phase/motd = %v/%v", body["phase"], body["motd"])
	}
	if body["clients"] != float64(2) {
		t.Errorf("clients = %v, want 2", body["clients"])
	}
}

func TestMatchSnapshot(t *testing.T) {
	match := fakeMatch{snap: server.Snapshot{
		Phase:   events.PhaseRacing,
		InRace:  true,
		Players: []server.PlayerStatus{{GUID: "a", CtrlType: "Keyboard", Racing: true}},
	}}
	s := NewServer(config.DefaultConfig(), Options{Match: match})
	body := decode(t, get(t, s.Handler(), "/api/public/match"))

	if body["phase"] != "racing" || body["in_race"] != true {
		t.Errorf("body = %v", body)
	}
	players, _ := body["players"].([]interface{})
	if len(players) != 1 {
		t.Errorf("players = %v", body["players"])
	}
}

func TestHistoryLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultHistoryLimit},
		{"?limit=10", http.StatusOK, 10},
		{"?limit=9999", http.StatusOK, maxHistoryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		h := &fakeHistory{}
		s := NewServer(config.DefaultConfig(), Options{History: h})
		rec := get(t, s.Handler(), "/api/public/history"+tt.query)
		if rec.Code != tt.wantCode {
			t.Errorf("%q: status = %d, want %d", tt.query, rec.Code, tt.wantCode)
		}
		if h.limit != tt.wantLimit {
			t.Errorf("%q: limit = %d, want %d", tt.query, h.limit, tt.wantLimit)
		}
	}
}

func TestResults(t *testing.T) {
	s := NewServer(config.DefaultConfig(), Options{History: &fakeHistory{}})
	rec := get(t, s.Handler(), "/api/public/results")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"race_time":61.25`) {
		t.Errorf("results = %d %s", rec.Code, rec.Body.String())
	}

	s = NewServer(config.DefaultConfig(), Options{History: &fakeHistory{err: errors.New("locked")}})
	if rec := get(t, s.Handler(), "/api/public/results"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status on error = %d, want 500", rec.Code)
	}
}

func TestRoutesNeedSources(t *testing.T) {
	s := NewServer(config.DefaultConfig(), Options{})
	for _, path := range []string{"/api/public/match", "/api/public/history", "/api/public/live"} {
		if rec := get(t, s.Handler(), path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sanicrelay_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(config.DefaultConfig(), Options{Gatherer: reg})
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sanicrelay_test_total 1") {
		t.Errorf("metrics = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other IPs have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("bucket should refill after 1s")
	}

	now = now.Add(2 * bucketIdle)
	rl.Allow("c")
	if _, ok := rl.buckets["a"]; ok {
		t.Error("idle bucket not swept")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatal("limiter with rps 0 must allow everything")
		}
	}
}

func TestLiveFeed(t *testing.T) {
	bus := events.NewEventBus()
	s := NewServer(config.DefaultConfig(), Options{Bus: bus})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/public/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.live.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	bus.Emit(context.Background(), events.New(events.EventDecodeError, "relay", nil))
	bus.Emit(context.Background(), events.New(events.EventChat, "relay", events.ChatPayload{From: "Sonic", Text: "gg"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string             `json:"type"`
		Payload events.ChatPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "chat" || msg.Payload.Text != "gg" {
		t.Errorf("live message = %s", data)
	}
}
