package api

import (
	"time"

	"arb-monitor/internal/market"
)

// BuildSnapshot aggregates state from the provider into a dashboard snapshot
func BuildSnapshot(provider Provider, order market.SortOrder) DashboardSnapshot {
	board := provider.BoardRows(order)
	if board == nil {
		board = []market.Row{}
	}
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Status:    provider.Status(),
		Board:     board,
		Table:     provider.Table(),
		Books:     provider.Books(),
		Settings:  RedactSettings(provider.Settings()),
	}
}
