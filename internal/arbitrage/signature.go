package arbitrage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"arb-monitor/internal/config"
	"arb-monitor/pkg/types"
)

// Signature identifies a priced opportunity for alert dedup: event, market,
// period, line and the sorted (book, selection, odds) legs. Profit is not
// part of it; the deduplicator compares profit separately.
func Signature(opp types.Opportunity) string {
	return key(opp, true)
}

// RowKey identifies the table row of an opportunity. It leaves out odds so a
// repriced opportunity updates its row in place.
func RowKey(opp types.Opportunity) string {
	return key(opp, false)
}

func key(opp types.Opportunity, withOdds bool) string {
	legs := []string{leg(opp.PickA, withOdds), leg(opp.PickB, withOdds)}
	sort.Strings(legs)

	period := opp.Period
	if period == "" {
		period = types.PeriodFT
	}
	return strings.Join([]string{
		opp.EventID,
		string(opp.Market),
		string(period),
		opp.Line(),
		legs[0],
		legs[1],
	}, "|")
}

func leg(p types.Pick, withOdds bool) string {
	s := config.NormBook(p.Book) + ":" + string(p.Selection)
	if withOdds {
		s += ":" + decimal.NewFromFloat(p.Odds).StringFixed(3)
	}
	return s
}
