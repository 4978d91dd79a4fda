package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/labeldash/internal/history"
	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/infrastructure/database"
	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
	"github.com/nerrad567/labeldash/migrations"
)

// stubTransport connects and acknowledges every subscription immediately.
type stubTransport struct {
	mu        sync.Mutex
	published []mqtt.Message
}

func (s *stubTransport) Connect(cb mqtt.ConnectCallbacks) { cb.OnSuccess() }

func (s *stubTransport) Subscribe(_ string, _ byte, cb mqtt.SubscribeCallbacks) { cb.OnSuccess() }

func (s *stubTransport) Unsubscribe(string) {}

func (s *stubTransport) Publish(msg mqtt.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, msg)
}

func (s *stubTransport) IsLinkActive() bool { return true }
func (s *stubTransport) SetOnConnectionLost(func(error)) {}
func (s *stubTransport) SetOnMessageArrived(func(string, []byte)) {}
func (s *stubTransport) Disconnect() {}

func (s *stubTransport) publishedTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.published))
	for _, m := range s.published {
		topics = append(topics, m.Topic)
	}
	return topics
}

// failingCheck is a HealthChecker that always fails.
type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("down") }

type testEnv struct {
	srv       *Server
	base      string
	manager   *session.Manager
	transport *stubTransport
}

// newTestEnv runs a real session over a stub transport, a migrated
// in-memory history and the API server on a random port.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := config.Default()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	cfg.Dashboard.ID = "dash-1"
	cfg.MQTT.Prefix = []string{"site"}

	transport := &stubTransport{}
	manager, err := session.New(session.Config{
		Dial:         func(string) session.Transport { return transport },
		Prefix:       cfg.MQTT.Prefix,
		InitialState: labels.InitialState(),
		Reducer:      labels.Reducer,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	go manager.Run(ctx) //nolint:errcheck // Stopped by cancel

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := history.NewRepository(db.DB)

	deps := Deps{
		Config:    cfg,
		Logger:    logging.Discard(),
		Session:   manager,
		Submitter: labels.NewSubmitter(manager, cfg.Dashboard.ID, cfg.MQTT.Prefix, nil, repo),
		History:   repo,
		Database:  db,
		Checks:    map[string]HealthChecker{"database": db},
		Version:   "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Cleanup(func() {
		srv.Close() //nolint:errcheck // Test cleanup
		cancel()
		<-manager.Done()
		db.Close() //nolint:errcheck // Test cleanup
	})

	return &testEnv{srv: srv, base: "http://" + srv.Addr(), manager: manager, transport: transport}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.base+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps should fail")
	}
	if _, err := New(Deps{Config: config.Default(), Logger: logging.Discard()}); err == nil {
		t.Error("New() without a session should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Session struct {
			Identity string `json:"identity"`
		} `json:"session"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, body, &got)
	if got.Status != "ok" || got.Version != "test" {
		t.Errorf("health = %+v", got)
	}
	if got.Session.Identity != env.manager.Identity() {
		t.Errorf("identity = %q, want %q", got.Session.Identity, env.manager.Identity())
	}
	if got.Checks["database"] != "ok" {
		t.Errorf("checks = %v", got.Checks)
	}
}

func TestHealth_FailingCheck(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{"influxdb": failingCheck{}}
	})

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"influxdb":"down"`) {
		t.Errorf("body = %s", body)
	}
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t, nil)
	eventually(t, "session connected", env.manager.Connected)

	resp, body := env.do(t, http.MethodGet, "/api/v1/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap session.Snapshot
	decode(t, body, &snap)
	if !snap.Connected || snap.Status != session.StatusConnected {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.State[session.ConnectedKey] != true {
		t.Errorf("state[connected] = %v, want true", snap.State[session.ConnectedKey])
	}
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t, nil)
	eventually(t, "session connected", env.manager.Connected)

	resp, body := env.do(t, http.MethodPost, "/api/v1/subscriptions", `{"topic":"status/+/alive"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, body = %s", resp.StatusCode, body)
	}

	eventually(t, "topic subscribed", func() bool {
		return env.manager.Subscriptions()["status/+/alive"] == session.SubSubscribed
	})

	resp, body = env.do(t, http.MethodGet, "/api/v1/subscriptions", "")
	var list struct {
		Subscriptions map[string]session.SubState `json:"subscriptions"`
		Count         int                         `json:"count"`
	}
	decode(t, body, &list)
	if resp.StatusCode != http.StatusOK || list.Count != 1 || list.Subscriptions["status/+/alive"] != session.SubSubscribed {
		t.Errorf("GET = %d %s", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/subscriptions?topic=status/%2B/alive", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if len(env.manager.Subscriptions()) != 0 {
		t.Errorf("subscriptions after DELETE = %v", env.manager.Subscriptions())
	}
}

func TestSubscriptions_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad json", http.MethodPost, "/api/v1/subscriptions", `{`, http.StatusBadRequest},
		{"empty topic", http.MethodPost, "/api/v1/subscriptions", `{"topic":"  "}`, http.StatusBadRequest},
		{"missing query", http.MethodDelete, "/api/v1/subscriptions", "", http.StatusBadRequest},
		{"unknown topic", http.MethodDelete, "/api/v1/subscriptions?topic=nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	env := newTestEnv(t, nil)

	job := `{"labelItems":[{"labelKey":"Product","labelValue":"Milk","labelType":"text"}],"qty":2}`
	resp, body := env.do(t, http.MethodPost, "/api/v1/print", job)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got struct {
		JobID string `json:"job_id"`
		Topic string `json:"topic"`
	}
	decode(t, body, &got)
	if got.JobID == "" || got.Topic != "site/print/" {
		t.Errorf("response = %+v", got)
	}

	eventually(t, "job published", func() bool {
		for _, topic := range env.transport.publishedTopics() {
			if topic == "site/print/" {
				return true
			}
		}
		return false
	})

	resp, body = env.do(t, http.MethodGet, "/api/v1/jobs?limit=10", "")
	var jobs struct {
		Jobs  []history.Entry `json:"jobs"`
		Count int             `json:"count"`
	}
	decode(t, body, &jobs)
	if resp.StatusCode != http.StatusOK || jobs.Count != 1 || jobs.Jobs[0].JobID != got.JobID {
		t.Errorf("jobs = %d %s", resp.StatusCode, body)
	}
	if jobs.Jobs[0].DashboardID != "dash-1" {
		t.Errorf("dashboard id = %q, want dash-1", jobs.Jobs[0].DashboardID)
	}
}

func TestPrint_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"labelItems":`},
		{"no items", `{"labelItems":[],"qty":1}`},
		{"bad type", `{"labelItems":[{"labelKey":"a","labelValue":"b","labelType":"hologram"}],"qty":1}`},
		{"zero qty", `{"labelItems":[{"labelKey":"a","labelValue":"b","labelType":"text"}],"qty":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/print", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", resp.StatusCode, body)
			}
		})
	}
}

func TestListJobs_BadLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/jobs?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListJobs_NoHistory(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.History = nil })

	resp, _ := env.do(t, http.MethodGet, "/api/v1/jobs", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDashboardConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/config/config.json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var doc config.DashboardDocument
	decode(t, body, &doc)
	if doc.ID != "dash-1" || doc.MQTT.Port != 1883 || len(doc.MQTT.Prefix) != 1 {
		t.Errorf("document = %+v", doc)
	}
	if strings.Contains(string(body), "password") {
		t.Error("document leaks credentials")
	}
}

func TestMetricsMounted(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "labeldash_up 1\n") //nolint:errcheck // Test handler
		})
	})

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "labeldash_up") {
		t.Errorf("GET /metrics = %d %s", resp.StatusCode, body)
	}
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "<!DOCTYPE html>") {
		t.Errorf("GET / = %d", resp.StatusCode)
	}
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodGet, env.base+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, env.base+"/api/v1/print", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
}

func TestWebSocket_StreamsSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+env.srv.Addr()+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	readSnapshot := func() session.Snapshot {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
		var msg struct {
			Type      string           `json:"type"`
			EventType string           `json:"event_type"`
			Payload   session.Snapshot `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelSession {
			t.Fatalf("message = %+v", msg)
		}
		return msg.Payload
	}

	first := readSnapshot()
	if first.Identity != env.manager.Identity() {
		t.Errorf("identity = %q", first.Identity)
	}

	env.manager.Subscribe("delivery_details/#")
	for {
		snap := readSnapshot()
		if snap.Subscriptions["delivery_details/#"] == session.SubSubscribed {
			break
		}
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+env.srv.Addr()+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline) //nolint:errcheck // Test deadline
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type == WSTypePong {
			if msg.ID != "p1" {
				t.Errorf("pong id = %q, want p1", msg.ID)
			}
			return
		}
	}
}

func TestSystem(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/api/v1/system", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got SystemStatus
	decode(t, body, &got)
	if got.Version != "test" || got.Runtime.Goroutines == 0 {
		t.Errorf("system = %+v", got)
	}
	if got.Session.Identity != env.manager.Identity() {
		t.Errorf("session identity = %q", got.Session.Identity)
	}
	if got.Database == nil || got.Database.OpenConnections != 1 {
		t.Errorf("database = %+v", got.Database)
	}
}

func TestClose_BeforeStart(t *testing.T) {
	srv := &Server{}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() = %q before Start", srv.Addr())
	}
}
