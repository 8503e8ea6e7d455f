package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// sampleOpportunities is the demo feed replayed by the mock endpoint.
var sampleOpportunities = []map[string]any{
	{
		"event_id": "E001", "event_name": "Arsenal vs Chelsea", "league": "Premier League",
		"market": "ah", "line_text": "-0/0.5", "line_numeric": -0.25,
		"pickA": map[string]any{"book": "parimatch", "selection": "home", "odds": 2.02},
		"pickB": map[string]any{"book": "singbet", "selection": "away", "odds": 1.98},
		"score": "1-0",
	},
	{
		"event_id": "E002", "event_name": "Manchester United vs Liverpool", "league": "Premier League",
		"market": "ou", "line_text": "2.5", "line_numeric": 2.5,
		"pickA": map[string]any{"book": "parimatch", "selection": "over", "odds": 1.95},
		"pickB": map[string]any{"book": "singbet", "selection": "under", "odds": 2.05},
		"score": "0-0",
	},
	{
		"event_id": "E003", "event_name": "Barcelona vs Real Madrid", "league": "La Liga",
		"market": "ah", "line_text": "0", "line_numeric": 0,
		"pickA": map[string]any{"book": "singbet", "selection": "home", "odds": 2.10},
		"pickB": map[string]any{"book": "parimatch", "selection": "away", "odds": 1.90},
		"score": "2-1",
	},
}

// MockFeed serves a demo odds feed over WebSocket: a snapshot on connect,
// periodic heartbeats and a fresh opportunity every few seconds.
type MockFeed struct {
	HeartbeatEvery time.Duration
	UpdateEvery    time.Duration // base interval; up to UpdateJitter is added
	UpdateJitter   time.Duration
	logger         *slog.Logger
	upgrader       websocket.Upgrader
}

// NewMockFeed returns a feed with the demo cadence.
func NewMockFeed(logger *slog.Logger) *MockFeed {
	return &MockFeed{
		HeartbeatEvery: 15 * time.Second,
		UpdateEvery:    3 * time.Second,
		UpdateJitter:   2 * time.Second,
		logger:         logger.With("component", "mock-feed"),
		upgrader:       websocket.Upgrader{EnableCompression: true},
	}
}

func (f *MockFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("mock feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	f.logger.Info("mock feed client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := f.write(conn, map[string]any{"type": "snapshot", "data": sampleOpportunities}); err != nil {
		return
	}

	heartbeat := time.NewTicker(f.HeartbeatEvery)
	defer heartbeat.Stop()
	update := time.NewTimer(f.nextUpdate())
	defer update.Stop()

	for i := 0; ; {
		select {
		case <-closed:
			f.logger.Info("mock feed client disconnected", "remote", r.RemoteAddr)
			return
		case <-heartbeat.C:
			if err := f.write(conn, map[string]any{"type": "heartbeat", "ts": time.Now().UnixMilli()}); err != nil {
				return
			}
		case <-update.C:
			if err := f.write(conn, map[string]any{"type": "opportunity", "data": mockOpportunity(i)}); err != nil {
				return
			}
			i++
			update.Reset(f.nextUpdate())
		}
	}
}

func (f *MockFeed) nextUpdate() time.Duration {
	d := f.UpdateEvery
	if f.UpdateJitter > 0 {
		d += rand.N(f.UpdateJitter)
	}
	return d
}

func (f *MockFeed) write(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// mockOpportunity derives the i-th replayed opportunity from a sample with a
// fresh event id and odds drawn from [1.80, 2.20).
func mockOpportunity(i int) map[string]any {
	base := sampleOpportunities[i%len(sampleOpportunities)]
	opp := make(map[string]any, len(base))
	for k, v := range base {
		opp[k] = v
	}
	opp["event_id"] = fmt.Sprintf("E%d_%d", time.Now().UnixMilli(), i)
	for _, side := range []string{"pickA", "pickB"} {
		pick := base[side].(map[string]any)
		opp[side] = map[string]any{
			"book":      pick["book"],
			"selection": pick["selection"],
			"odds":      fmt.Sprintf("%.2f", 1.8+rand.Float64()*0.4),
		}
	}
	return opp
}
