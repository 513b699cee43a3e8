package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartdevs17/noc-leaderboard/internal/audit"
	"github.com/smartdevs17/noc-leaderboard/internal/auth"
	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/internal/leaderboard"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/models"
	"github.com/smartdevs17/noc-leaderboard/internal/storage"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

type testEnv struct {
	srv     *httptest.Server
	hub     *broadcast.Hub
	metrics *metrics.Manager
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := auth.HashPassword("admin-secret", bcrypt.MinCost)
	require.NoError(t, err)

	return &config.Config{
		App: config.AppConfig{Name: "noc-leaderboard", Version: "test"},
		Storage: config.StorageConfig{
			Type:             "sqlite",
			ConnectionString: filepath.Join(t.TempDir(), "leaderboard.db"),
			MaxConnections:   4,
			MaxIdleTime:      time.Minute,
		},
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           5000,
			EnableMetrics:  true,
			EnableHealth:   true,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Realtime: config.RealtimeConfig{
			QueueSize:       16,
			WriteWait:       time.Second,
			PongWait:        10 * time.Second,
			PingPeriod:      9 * time.Second,
			MaxMessageSize:  512,
			EnableWebSocket: true,
			EnableSSE:       true,
		},
		Auth: config.AuthConfig{
			Users:           []config.UserConfig{{Username: "admin", Email: "admin@noc.local", PasswordHash: hash, Role: "admin"}},
			LoginRatePerMin: 1,
			LoginBurst:      3,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore lets wrap replace the store the service writes to
func newTestEnvWithStore(t *testing.T, wrap func(storage.Storage) storage.Storage) *testEnv {
	t.Helper()
	utils.InitLogger("warn", "text", "discard", "")
	cfg := testConfig(t)

	m := metrics.NewManager()
	base, err := storage.NewStorage(&cfg.Storage)
	require.NoError(t, err)
	require.NoError(t, base.Connect())
	t.Cleanup(func() { base.Close() })
	require.NoError(t, base.Migrate())
	store := storage.NewStorageWithMetrics(base, m)

	hub := broadcast.NewHub(cfg.Realtime.QueueSize, m)
	var serviceStore storage.Storage = store
	if wrap != nil {
		serviceStore = wrap(store)
	}
	svc := leaderboard.NewService(serviceStore, audit.NewLog(), hub, m)

	s, err := NewHTTPServer(cfg, Dependencies{
		Service:       svc,
		Storage:       store,
		Hub:           hub,
		Authenticator: auth.NewAuthenticator(&cfg.Auth),
		Metrics:       m,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, hub: hub, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func (e *testEnv) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireFrame struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wireFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func TestLeaderboardScenario(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dialWS(t)

	// Create
	resp := env.do(t, http.MethodPost, "/leaderboard", `{"name":"Alice","text":"printer jam"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Entry
	decode(t, resp, &created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, models.StatusPending, created.Status)

	frame := readFrame(t, ws)
	assert.Equal(t, "new-entry", frame.Event)
	assert.Equal(t, uint64(1), frame.Seq)

	// List
	resp = env.do(t, http.MethodGet, "/leaderboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []models.Entry
	decode(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice", entries[0].Name)

	// Update
	resp = env.do(t, http.MethodPut, "/leaderboard/1", `{"name":"Alice","text":"printer jam","status":"active"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Entry
	decode(t, resp, &updated)
	assert.Equal(t, models.StatusActive, updated.Status)

	frame = readFrame(t, ws)
	assert.Equal(t, "update-entry", frame.Event)
	var payload models.Entry
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, int64(1), payload.ID)
	assert.Equal(t, models.StatusActive, payload.Status)

	// Delete
	resp = env.do(t, http.MethodDelete, "/leaderboard/1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	frame = readFrame(t, ws)
	assert.Equal(t, "delete-entry", frame.Event)
	assert.JSONEq(t, "1", string(frame.Data))

	resp = env.do(t, http.MethodGet, "/deleted-entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw []map[string]interface{}
	decode(t, resp, &raw)
	require.Len(t, raw, 1)
	assert.Equal(t, "Alice", raw[0]["name"])
	assert.Contains(t, raw[0], "date_deleted")
	assert.Contains(t, raw[0], "date_created")

	// Second delete is a 404 and changes nothing
	resp = env.do(t, http.MethodDelete, "/leaderboard/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/deleted-entries", "")
	decode(t, resp, &raw)
	assert.Len(t, raw, 1)
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"missing text", http.MethodPost, "/leaderboard", `{"name":"Alice"}`},
		{"empty name", http.MethodPost, "/leaderboard", `{"name":" ","text":"printer jam"}`},
		{"unknown field", http.MethodPost, "/leaderboard", `{"name":"Alice","text":"x","id":7}`},
		{"malformed json", http.MethodPost, "/leaderboard", `{"name":`},
		{"empty body", http.MethodPost, "/leaderboard", ``},
		{"bad status", http.MethodPost, "/leaderboard", `{"name":"Alice","text":"x","status":"closed"}`},
		{"non-numeric id", http.MethodPut, "/leaderboard/abc", `{"name":"Alice","text":"x"}`},
		{"zero id", http.MethodDelete, "/leaderboard/0", ``},
		{"overflowing id", http.MethodGet, "/leaderboard/99999999999999999999", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body ErrorResponse
			decode(t, resp, &body)
			assert.Equal(t, utils.ErrCodeValidation, body.Code)
			assert.Equal(t, http.StatusBadRequest, body.Status)
		})
	}

	resp := env.do(t, http.MethodGet, "/leaderboard", "")
	var entries []models.Entry
	decode(t, resp, &entries)
	assert.Empty(t, entries)
	assert.Equal(t, uint64(0), env.hub.LastSeq())
}

func TestMissingEntries(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/leaderboard/42", `{"name":"Alice","text":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, utils.ErrCodeNotFound, body.Code)

	resp = env.do(t, http.MethodGet, "/leaderboard/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/leaderboard/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, uint64(0), env.hub.LastSeq())
}

// brokenWrites fails every write with a backend error
type brokenWrites struct {
	storage.Storage
}

func (brokenWrites) storeErr() error {
	return utils.NewStoreError("Failed to write entry", errors.New("disk I/O error at /var/lib/leaderboard.db"))
}

func (b brokenWrites) CreateEntry(context.Context, *models.Entry) error { return b.storeErr() }
func (b brokenWrites) UpdateEntry(context.Context, *models.Entry) error { return b.storeErr() }
func (b brokenWrites) DeleteEntry(context.Context, int64) error         { return b.storeErr() }

func TestStoreFailuresReturnGenericServerError(t *testing.T) {
	var inner storage.Storage
	env := newTestEnvWithStore(t, func(s storage.Storage) storage.Storage {
		inner = s
		return brokenWrites{Storage: s}
	})

	seeded := &models.Entry{Name: "Alice", Text: "printer jam", Status: models.StatusPending, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	require.NoError(t, inner.CreateEntry(context.Background(), seeded))

	conn := env.dialWS(t)

	requests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/leaderboard", `{"name":"Bob","text":"vpn down"}`},
		{http.MethodPut, "/leaderboard/1", `{"name":"Alice","text":"printer fixed","status":"active"}`},
		{http.MethodDelete, "/leaderboard/1", ""},
	}
	for _, req := range requests {
		resp := env.do(t, req.method, req.path, req.body)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode, req.method)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "disk I/O", req.method)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "Internal server error", body.Error)
		assert.Equal(t, utils.ErrCodeDatabase, body.Code)
		assert.Empty(t, body.Details)
	}

	assert.Equal(t, uint64(0), env.hub.LastSeq())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no event expected after failed mutations")

	resp := env.do(t, http.MethodGet, "/deleted-entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted []models.DeletedEntry
	decode(t, resp, &deleted)
	assert.Empty(t, deleted)

	resp = env.do(t, http.MethodGet, "/leaderboard/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored models.Entry
	decode(t, resp, &stored)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "printer jam", stored.Text)
}

func TestUpdateWithoutStatusKeepsIt(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/leaderboard", `{"name":"Bob","text":"vpn down","status":"active"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/leaderboard/1", `{"name":"Bob","text":"vpn restored"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Entry
	decode(t, resp, &updated)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.Equal(t, "vpn restored", updated.Text)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/login", `{"username":"admin","password":"admin-secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Success bool      `json:"success"`
		User    auth.User `json:"user"`
	}
	decode(t, resp, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "admin", body.User.Role)

	resp = env.do(t, http.MethodPost, "/login", `{"email":"admin@noc.local","password":"wrong"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rejected map[string]interface{}
	decode(t, resp, &rejected)
	assert.Equal(t, map[string]interface{}{"success": false}, rejected)

	// Burst of 3 is spent; the next attempt is limited.
	resp = env.do(t, http.MethodPost, "/login", `{"username":"admin","password":"admin-secret"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/login", `{"username":"admin","password":"admin-secret"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	prom := env.metrics.GetPrometheusMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.LoginAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.LoginAttemptsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.LoginAttemptsTotal.WithLabelValues("rate_limited")))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/leaderboard/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/leaderboard", `{"name":"Alice","text":"printer jam"}`)

	resp := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = env.do(t, http.MethodGet, "/health/detailed", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health["status"])

	resp = env.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Storage storage.StorageStats `json:"storage"`
	}
	decode(t, resp, &stats)
	assert.Equal(t, int64(1), stats.Storage.TotalEntries)

	resp = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "leaderboard_http_requests_total")
	assert.Contains(t, string(body), `path="/leaderboard"`)

	env.hub.Close()
	resp = env.do(t, http.MethodGet, "/health/detailed", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/leaderboard", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	utils.InitLogger("warn", "text", "discard", "")
	cfg := testConfig(t)
	cfg.Server.Port = 0

	hub := broadcast.NewHub(4, nil)
	svc := leaderboard.NewService(nil, audit.NewLog(), hub, nil)
	s, err := NewHTTPServer(cfg, Dependencies{Service: svc, Hub: hub})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	require.Eventually(t, func() bool { return !hub.IsHealthy() }, 2*time.Second, 10*time.Millisecond)
}

func TestNewHTTPServerRequiresDependencies(t *testing.T) {
	_, err := NewHTTPServer(testConfig(t), Dependencies{})
	assert.Error(t, err)
}

func TestPublishedEventsReachSSE(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.do(t, http.MethodPost, "/leaderboard", `{"name":"Alice","text":"printer jam"}`)

	buf := make([]byte, 512)
	var got bytes.Buffer
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), "\n\n") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), "event: new-entry")
	assert.Contains(t, got.String(), `"name":"Alice"`)
}
