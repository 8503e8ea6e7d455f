package api

import (
	"time"

	"arb-monitor/internal/alert"
	"arb-monitor/internal/config"
)

// Event types pushed over /ws.
const (
	EventSnapshot   = "snapshot"
	EventStatus     = "status"
	EventHeartbeat  = "heartbeat"
	EventBoard      = "board"
	EventRowUpsert  = "row_upsert"
	EventRowRemove  = "row_remove"
	EventRowHidden  = "row_hidden"
	EventTableClear = "table_clear"
	EventAlert      = "alert"
	EventSettings   = "settings"
)

// DashboardEvent is the wrapper for all events sent to the dashboard
type DashboardEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ string, data any) DashboardEvent {
	return DashboardEvent{Type: typ, Timestamp: time.Now(), Data: data}
}

// NewAlertEvent wraps a dispatched alert.
func NewAlertEvent(a alert.Alert) DashboardEvent {
	return DashboardEvent{Type: EventAlert, Timestamp: a.At, Data: a}
}

// NewSettingsEvent carries settings with the feed token redacted.
func NewSettingsEvent(s config.Settings) DashboardEvent {
	return NewEvent(EventSettings, RedactSettings(s))
}

const redacted = "********"

// RedactSettings hides the feed token from dashboard payloads.
func RedactSettings(s config.Settings) config.Settings {
	out := s.Clone()
	if out.Datasource.Token != "" {
		out.Datasource.Token = redacted
	}
	return out
}

// restoreToken undoes RedactSettings on a settings update.
func restoreToken(next *config.Settings, current config.Settings) {
	if next.Datasource.Token == redacted {
		next.Datasource.Token = current.Datasource.Token
	}
}
