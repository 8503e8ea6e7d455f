package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arb-monitor/internal/config"
	"arb-monitor/internal/feed"
	"arb-monitor/internal/market"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.DashboardConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:3000",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:5173",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:3000",
			want:    true,
		},
		{
			name:    "loopback ip allowed by default",
			origin:  "http://127.0.0.1:3000",
			cfg:     config.DashboardConfig{},
			reqHost: "0.0.0.0:3000",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:3000",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://odds.example.com",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://odds.example.com/"}},
			reqHost: "0.0.0.0:3000",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "http://localhost:3000",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://odds.example.com"}},
			reqHost: "localhost:3000",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://monitor.lan:3000",
			cfg:     config.DashboardConfig{},
			reqHost: "monitor.lan:3000",
			want:    true,
		},
		{
			name:    "garbage origin denied",
			origin:  "::not a url",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:3000",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// fakeProvider is an in-memory Provider.
type fakeProvider struct {
	mu          sync.Mutex
	settings    config.Settings
	updated     []config.Settings
	updateErr   error
	reconnects  int
	cleared     int
	testLatency time.Duration
	testErr     error
	tested      []config.DatasourceSettings
	events      chan DashboardEvent
}

func newFakeProvider() *fakeProvider {
	s := config.DefaultSettings()
	s.Books = map[string]bool{"parimatch": true, "singbet": true}
	s.Datasource.Token = "secret-token"
	return &fakeProvider{settings: s, events: make(chan DashboardEvent, 8)}
}

func (f *fakeProvider) Status() StatusEvent {
	return StatusEvent{State: feed.Connected, URL: "ws://feed.test/ws"}
}

func (f *fakeProvider) BoardRows(market.SortOrder) []market.Row { return nil }
func (f *fakeProvider) Table() []ArbRow                          { return []ArbRow{} }
func (f *fakeProvider) Books() []string                          { return []string{"parimatch", "singbet"} }

func (f *fakeProvider) Settings() config.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone()
}

func (f *fakeProvider) UpdateSettings(_ context.Context, s config.Settings) (config.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.settings.Clone(), f.updateErr
	}
	f.updated = append(f.updated, s)
	f.settings = s.Clone()
	return s, nil
}

func (f *fakeProvider) Reconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}

func (f *fakeProvider) Recalculate(context.Context) int { return 3 }

func (f *fakeProvider) ClearAlerts(context.Context) error {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) TestDatasource(_ context.Context, ds config.DatasourceSettings) (time.Duration, error) {
	f.mu.Lock()
	f.tested = append(f.tested, ds)
	f.mu.Unlock()
	return f.testLatency, f.testErr
}

func (f *fakeProvider) DashboardEvents() <-chan DashboardEvent { return f.events }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, p *fakeProvider) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(config.DashboardConfig{Port: 3000}, p, discardLogger())
	go srv.hub.Run()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.hub.Close()
	})
	return srv, ts
}

func newTestServer(t *testing.T, p *fakeProvider) *httptest.Server {
	t.Helper()
	_, ts := startServer(t, p)
	return ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newFakeProvider())

	var body map[string]any
	code := doJSON(t, http.MethodGet, ts.URL+"/health", "", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["feed"])
}

func TestSnapshotRedactsToken(t *testing.T) {
	ts := newTestServer(t, newFakeProvider())

	var snap DashboardSnapshot
	code := doJSON(t, http.MethodGet, ts.URL+"/api/snapshot?sort=league", "", &snap)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, redacted, snap.Settings.Datasource.Token)
	assert.Equal(t, []string{"parimatch", "singbet"}, snap.Books)
	assert.NotNil(t, snap.Board)
}

func TestPutSettingsKeepsRedactedToken(t *testing.T) {
	p := newFakeProvider()
	ts := newTestServer(t, p)

	body := `{"datasource":{"wsMode":"auto","transport":"ws","useMock":false,"token":"********"},"stake":{"aBook":"singbet","amountA":5000,"minProfit":10}}`
	var got config.Settings
	code := doJSON(t, http.MethodPut, ts.URL+"/api/settings", body, &got)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, p.updated, 1)
	assert.Equal(t, "secret-token", p.updated[0].Datasource.Token)
	assert.Equal(t, "singbet", p.updated[0].Stake.ABook)
	assert.Equal(t, int64(5000), p.updated[0].Stake.AmountA)
	assert.True(t, p.updated[0].Books["parimatch"], "sections absent from the body keep their values")
	assert.Equal(t, redacted, got.Datasource.Token)
}

func TestPutSettingsErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t, newFakeProvider())
		var resp ErrorResponse
		code := doJSON(t, http.MethodPut, ts.URL+"/api/settings", `{"stake":`, &resp)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("rejected by provider", func(t *testing.T) {
		p := newFakeProvider()
		p.updateErr = fmt.Errorf("wrapped: %w", ErrBadSettings)
		ts := newTestServer(t, p)
		var resp ErrorResponse
		code := doJSON(t, http.MethodPut, ts.URL+"/api/settings", `{}`, &resp)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("provider failure", func(t *testing.T) {
		p := newFakeProvider()
		p.updateErr = errors.New("disk full")
		ts := newTestServer(t, p)
		var resp ErrorResponse
		code := doJSON(t, http.MethodPut, ts.URL+"/api/settings", `{}`, &resp)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Contains(t, resp.Message, "disk full")
	})
}

func TestCommands(t *testing.T) {
	p := newFakeProvider()
	ts := newTestServer(t, p)

	assert.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, ts.URL+"/api/reconnect", "", nil))
	assert.Equal(t, 1, p.reconnects)

	var recalc map[string]int
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/recalculate", "", &recalc))
	assert.Equal(t, 3, recalc["rows"])

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/alerts/clear", "", nil))
	assert.Equal(t, 1, p.cleared)
}

func TestTestDatasource(t *testing.T) {
	t.Run("current settings", func(t *testing.T) {
		p := newFakeProvider()
		p.testLatency = 42 * time.Millisecond
		ts := newTestServer(t, p)

		var res TestResult
		require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/datasource/test", "", &res))
		assert.True(t, res.OK)
		assert.Equal(t, int64(42), res.LatencyMS)
		require.Len(t, p.tested, 1)
		assert.Equal(t, "secret-token", p.tested[0].Token)
	})

	t.Run("draft datasource", func(t *testing.T) {
		p := newFakeProvider()
		p.testErr = errors.New("dial tcp: connection refused")
		ts := newTestServer(t, p)

		var res TestResult
		body := `{"wsMode":"custom","wsUrl":" ws://other.test/feed ","token":"********","transport":"sse"}`
		require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/datasource/test", body, &res))
		assert.False(t, res.OK)
		assert.Equal(t, "ws://other.test/feed", res.URL)
		assert.Contains(t, res.Error, "connection refused")
		require.Len(t, p.tested, 1)
		assert.Equal(t, "secret-token", p.tested[0].Token)
		assert.Equal(t, config.TransportSSE, p.tested[0].Transport)
	})

	t.Run("awaiting config", func(t *testing.T) {
		p := newFakeProvider()
		p.testErr = feed.ErrAwaitingConfig
		ts := newTestServer(t, p)

		var res TestResult
		doJSON(t, http.MethodPost, ts.URL+"/api/datasource/test", `{"wsMode":"custom","wsUrl":""}`, &res)
		assert.False(t, res.OK)
		assert.Equal(t, "no datasource URL configured", res.Error)
	})
}

func TestWebSocketSendsSnapshotFirst(t *testing.T) {
	p := newFakeProvider()
	ts := newTestServer(t, p)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type string            `json:"type"`
		Data DashboardSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, EventSnapshot, evt.Type)
	assert.Equal(t, redacted, evt.Data.Settings.Datasource.Token)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, newFakeProvider())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
