// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the monitor: picks, markets,
// canonical opportunities, feed messages and arbitrage results. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"strconv"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Selection is the side of a two-way market a pick backs.
type Selection string

const (
	Over  Selection = "over"
	Under Selection = "under"
	Home  Selection = "home"
	Away  Selection = "away"
)

// Opposite returns the competing side of the same market, or "" for an unknown selection.
func (s Selection) Opposite() Selection {
	switch s {
	case Over:
		return Under
	case Under:
		return Over
	case Home:
		return Away
	case Away:
		return Home
	default:
		return ""
	}
}

// Market returns the market a selection belongs to.
func (s Selection) Market() (Market, bool) {
	switch s {
	case Over, Under:
		return MarketOU, true
	case Home, Away:
		return MarketAH, true
	default:
		return "", false
	}
}

// Market is the bet type: over/under totals or Asian handicap.
type Market string

const (
	MarketOU Market = "ou" // totals
	MarketAH Market = "ah" // handicap
)

// Period is the portion of the match a market settles on.
type Period string

const (
	PeriodFT Period = "FT" // full time
	PeriodHT Period = "HT" // first half
)

// ————————————————————————————————————————————————————————————————————————
// Opportunities
// ————————————————————————————————————————————————————————————————————————

// Pick is one priced side offered by one bookmaker.
type Pick struct {
	Book      string    `json:"book"`      // lower-case, normalized
	Selection Selection `json:"selection"` // over | under | home | away
	Odds      float64   `json:"odds"`      // decimal odds, always > 0
}

// Opportunity is the canonical unit of work produced by the normalizer.
// PickA and PickB are the two competing sides of the same market and line.
type Opportunity struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	League    string `json:"league"`
	Home      string `json:"home"`
	Away      string `json:"away"`
	Score     string `json:"score"`

	Market      Market   `json:"market"`
	Period      Period   `json:"period"`
	LineText    string   `json:"line_text"`
	LineNumeric *float64 `json:"line_numeric,omitempty"`

	PickA Pick `json:"pickA"`
	PickB Pick `json:"pickB"`

	KickoffAt time.Time `json:"kickoff_at,omitempty"` // zero when unknown
}

// Valid reports whether both picks carry positive odds. Opportunities failing
// this are discarded and never stored.
func (o Opportunity) Valid() bool {
	return o.PickA.Odds > 0 && o.PickB.Odds > 0
}

// Line returns the text form of the betting line, falling back to the numeric value.
func (o Opportunity) Line() string {
	if o.LineText != "" {
		return o.LineText
	}
	if o.LineNumeric != nil {
		return strconv.FormatFloat(*o.LineNumeric, 'f', -1, 64)
	}
	return ""
}

// ————————————————————————————————————————————————————————————————————————
// Feed messages
// ————————————————————————————————————————————————————————————————————————

// MessageKind tags a CanonicalMessage.
type MessageKind int

const (
	KindHeartbeat MessageKind = iota
	KindSnapshot
	KindOpportunity
)

func (k MessageKind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSnapshot:
		return "snapshot"
	case KindOpportunity:
		return "opportunity"
	default:
		return "unknown"
	}
}

// CanonicalMessage is the decoded form of one feed frame.
//
//   - KindHeartbeat:   Timestamp set
//   - KindSnapshot:    Opportunities holds the full replacement state (may be empty)
//   - KindOpportunity: Opportunity holds one incremental upsert
type CanonicalMessage struct {
	Kind          MessageKind
	Timestamp     time.Time
	Opportunities []Opportunity
	Opportunity   *Opportunity
}

// ————————————————————————————————————————————————————————————————————————
// Arbitrage
// ————————————————————————————————————————————————————————————————————————

// Side labels used in ArbitrageResult.
const (
	SideA            = "A"
	SideB            = "B"
	SideUndesignated = "—" // neither book is the designated stake-A book
)

// ArbitrageResult is the outcome of balancing one opportunity. It is never
// persisted; it is recomputed per incoming opportunity and on every sweep.
type ArbitrageResult struct {
	Opportunity Opportunity `json:"opportunity"`
	SideLabelA  string      `json:"side_a"`
	SideLabelB  string      `json:"side_b"`
	PickA       Pick        `json:"pickA"`
	PickB       Pick        `json:"pickB"`
	WaterA      string      `json:"water_a"` // odds - 1, three decimals
	WaterB      string      `json:"water_b"`
	StakeA      int64       `json:"stake_a"`
	StakeB      int64       `json:"stake_b"`
	Profit      int64       `json:"profit"`
	ShouldAlert bool        `json:"should_alert"`

	// Signature identifies the priced opportunity for alert dedup.
	Signature string `json:"signature"`
	// RowKey identifies the table row; it excludes odds so a repriced
	// opportunity updates its row in place.
	RowKey string `json:"row_key"`
}

// Designated reports whether one of the picks is the stake-A book.
func (r ArbitrageResult) Designated() bool {
	return r.SideLabelA != SideUndesignated
}
