package api

import (
	"context"
	"time"

	"arb-monitor/internal/config"
	"arb-monitor/internal/feed"
	"arb-monitor/internal/market"
	"arb-monitor/pkg/types"
)

// Provider is the state the dashboard reads and the commands it may issue.
type Provider interface {
	Status() StatusEvent
	BoardRows(order market.SortOrder) []market.Row
	Table() []ArbRow
	Books() []string
	Settings() config.Settings
	UpdateSettings(ctx context.Context, s config.Settings) (config.Settings, error)
	Reconnect()
	Recalculate(ctx context.Context) int
	ClearAlerts(ctx context.Context) error
	TestDatasource(ctx context.Context, ds config.DatasourceSettings) (time.Duration, error)
	DashboardEvents() <-chan DashboardEvent
}

// DashboardSnapshot represents the complete dashboard state
type DashboardSnapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    StatusEvent     `json:"status"`
	Board     []market.Row    `json:"board"`
	Table     []ArbRow        `json:"table"`
	Books     []string        `json:"books"`
	Settings  config.Settings `json:"settings"`
}

// StatusEvent is the connection indicator.
type StatusEvent struct {
	State   feed.State `json:"state"`
	Attempt int        `json:"attempt"`
	URL     string     `json:"url,omitempty"`
}

// BoardEvent reports a board change. Replaced is set for snapshots and
// clears; otherwise Rows holds the enabled rows of EventID.
type BoardEvent struct {
	EventID  string       `json:"event_id,omitempty"`
	Replaced bool         `json:"replaced,omitempty"`
	Events   int          `json:"events"`
	Rows     []market.Row `json:"rows,omitempty"`
}

// ArbRow is one row of the arbitrage table.
type ArbRow struct {
	Result    types.ArbitrageResult `json:"result"`
	UpdatedAt time.Time             `json:"updated_at"`
	Alerted   bool                  `json:"alerted"`
	Hidden    bool                  `json:"hidden"`
}

// RowEvent identifies a removed or hidden row.
type RowEvent struct {
	RowKey string `json:"row_key"`
	Reason string `json:"reason,omitempty"`
}

// TestResult answers a datasource connection test.
type TestResult struct {
	OK        bool   `json:"ok"`
	URL       string `json:"url,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
