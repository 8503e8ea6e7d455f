package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arb-monitor/internal/config"
	"arb-monitor/internal/feed"
	"arb-monitor/internal/market"
)

const maxSettingsBody = 64 * 1024

// ErrBadSettings is returned by a Provider for settings that fail validation.
// Handlers answer it with 400; engine errors wrapping it qualify too.
var ErrBadSettings = errors.New("bad settings")

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	provider Provider
	cfg      config.DashboardConfig
	upgrader websocket.Upgrader
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(provider Provider, cfg config.DashboardConfig, hub *Hub, logger *slog.Logger) *Handlers {
	h := &Handlers{
		provider: provider,
		cfg:      cfg,
		hub:      hub,
		logger:   logger.With("component", "api-handlers"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
		},
	}
	return h
}

// isOriginAllowed permits requests without an Origin, origins on the
// allowlist, and, when no allowlist is configured, loopback or same-host origins.
func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(cfg.AllowedOrigins) > 0 {
		for _, o := range cfg.AllowedOrigins {
			if strings.EqualFold(strings.TrimRight(o, "/"), strings.TrimRight(origin, "/")) {
				return true
			}
		}
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, reqHost) {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.provider.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"feed":    st.State,
		"clients": h.hub.ClientCount(),
	})
}

// HandleSnapshot returns the current dashboard state
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	order := market.ParseSortOrder(r.URL.Query().Get("sort"))
	respondJSON(w, http.StatusOK, BuildSnapshot(h.provider, order))
}

// HandleBoard returns the rendered market board.
func (h *Handlers) HandleBoard(w http.ResponseWriter, r *http.Request) {
	order := market.ParseSortOrder(r.URL.Query().Get("sort"))
	rows := h.provider.BoardRows(order)
	if rows == nil {
		rows = []market.Row{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sort": order, "rows": rows})
}

// HandleGetSettings returns the settings with the feed token redacted.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RedactSettings(h.provider.Settings()))
}

// HandlePutSettings applies a full or partial settings document. Sections
// missing from the body keep their current values.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	current := h.provider.Settings()
	next, err := current.Overlay(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid settings document", err)
		return
	}
	restoreToken(&next, current)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	saved, err := h.provider.UpdateSettings(ctx, next)
	if err != nil {
		if errors.Is(err, ErrBadSettings) {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update settings", err)
		return
	}
	respondJSON(w, http.StatusOK, RedactSettings(saved))
}

// HandleReconnect forces a fresh feed connection.
func (h *Handlers) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	h.provider.Reconnect()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

// HandleRecalculate rebuilds the arbitrage table from the board.
func (h *Handlers) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	n := h.provider.Recalculate(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"rows": n})
}

// HandleClearAlerts empties the table and the dedup memory.
func (h *Handlers) HandleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.ClearAlerts(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear alerts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleTestDatasource probes a datasource. The body may carry a datasource
// section to test before saving it; an empty body tests the current one.
func (h *Handlers) HandleTestDatasource(w http.ResponseWriter, r *http.Request) {
	current := h.provider.Settings()
	ds := current.Datasource

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &ds); err != nil {
			respondError(w, http.StatusBadRequest, "invalid datasource document", err)
			return
		}
		if ds.Token == redacted {
			ds.Token = current.Datasource.Token
		}
	}

	latency, err := h.provider.TestDatasource(r.Context(), ds)
	res := TestResult{OK: err == nil, URL: strings.TrimSpace(ds.URL)}
	switch {
	case err == nil:
		res.LatencyMS = latency.Milliseconds()
	case errors.Is(err, feed.ErrAwaitingConfig):
		res.Error = "no datasource URL configured"
	default:
		res.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, res)
}

// HandleWebSocket upgrades to the push stream. ?events=board,alert limits
// the event types delivered.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	topics := ParseTopics(r.URL.Query().Get("events"))
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	evt := NewEvent(EventSnapshot, BuildSnapshot(h.provider, market.SortByTime))
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		data = nil
	}
	NewClient(h.hub, conn, topics, data)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	if err != nil {
		resp.Message = message + ": " + err.Error()
	}
	respondJSON(w, status, resp)
}
