package market

import (
	"sort"
	"strings"
	"time"

	"arb-monitor/pkg/types"
)

// SortOrder selects how Rows are ordered.
type SortOrder string

const (
	SortByTime   SortOrder = "time"   // kickoff ascending, then most recently updated
	SortByLeague SortOrder = "league" // league name, then first-seen order
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to SortByTime.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(s))) == SortByLeague {
		return SortByLeague
	}
	return SortByTime
}

// Row is one (event, book, period) group of the rendered board.
type Row struct {
	Seq       uint64       `json:"seq"`
	EventID   string       `json:"event_id"`
	EventName string       `json:"event_name"`
	League    string       `json:"league"`
	Home      string       `json:"home"`
	Away      string       `json:"away"`
	Score     string       `json:"score"`
	Book      string       `json:"book"`
	Period    types.Period `json:"period"`
	OU        *OUQuote     `json:"ou,omitempty"`
	AH        *AHQuote     `json:"ah,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
	KickoffAt time.Time    `json:"kickoff_at,omitempty"`
}

// Rows enumerates (event, book, period) groups whose book passes enabled.
// A nil enabled accepts every book.
func (b *Board) Rows(enabled func(book string) bool, order SortOrder) []Row {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var rows []Row
	for _, e := range b.entries {
		keys := make(map[BookPeriod]struct{}, len(e.OU)+len(e.AH))
		for k := range e.OU {
			keys[k] = struct{}{}
		}
		for k := range e.AH {
			keys[k] = struct{}{}
		}
		for k := range keys {
			if enabled != nil && !enabled(k.Book) {
				continue
			}
			row := Row{
				Seq:       b.seq[e.EventID+"|"+k.Book+"|"+string(k.Period)],
				EventID:   e.EventID,
				EventName: e.EventName,
				League:    e.League,
				Home:      e.Home,
				Away:      e.Away,
				Score:     e.Score,
				Book:      k.Book,
				Period:    k.Period,
				UpdatedAt: e.UpdatedAt,
				KickoffAt: e.KickoffAt,
			}
			if q, ok := e.OU[k]; ok {
				row.OU = &q
			}
			if q, ok := e.AH[k]; ok {
				row.AH = &q
			}
			rows = append(rows, row)
		}
	}

	sortRows(rows, order)
	return rows
}

func sortRows(rows []Row, order SortOrder) {
	sort.Slice(rows, func(i, j int) bool {
		a, c := rows[i], rows[j]
		if order == SortByLeague {
			la, lc := strings.ToLower(a.League), strings.ToLower(c.League)
			if la != lc {
				return la < lc
			}
			return a.Seq < c.Seq
		}

		ka, kc := !a.KickoffAt.IsZero(), !c.KickoffAt.IsZero()
		switch {
		case ka && !kc:
			return true
		case !ka && kc:
			return false
		case ka && kc && !a.KickoffAt.Equal(c.KickoffAt):
			return a.KickoffAt.Before(c.KickoffAt)
		case !ka && !kc && !a.UpdatedAt.Equal(c.UpdatedAt):
			return a.UpdatedAt.After(c.UpdatedAt)
		}
		return a.Seq < c.Seq
	})
}

// Opportunities rebuilds every cross-book pair the board can price: for each
// event, period and market, each book's over (home) quote against every other
// book's under (away) quote at the same line.
func (b *Board) Opportunities() []types.Opportunity {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.Opportunity
	for _, e := range b.entries {
		for ka, qa := range e.OU {
			for kb, qb := range e.OU {
				if ka.Book == kb.Book || ka.Period != kb.Period || qa.Line != qb.Line {
					continue
				}
				if qa.Over > 0 && qb.Under > 0 {
					out = append(out, e.pair(types.MarketOU, ka.Period, qa.Line,
						types.Pick{Book: ka.Book, Selection: types.Over, Odds: qa.Over},
						types.Pick{Book: kb.Book, Selection: types.Under, Odds: qb.Under}))
				}
			}
		}
		for ka, qa := range e.AH {
			for kb, qb := range e.AH {
				if ka.Book == kb.Book || ka.Period != kb.Period || qa.Line != qb.Line {
					continue
				}
				if qa.Home > 0 && qb.Away > 0 {
					out = append(out, e.pair(types.MarketAH, ka.Period, qa.Line,
						types.Pick{Book: ka.Book, Selection: types.Home, Odds: qa.Home},
						types.Pick{Book: kb.Book, Selection: types.Away, Odds: qb.Away}))
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.EventID != c.EventID {
			return a.EventID < c.EventID
		}
		if a.Period != c.Period {
			return a.Period < c.Period
		}
		if a.Market != c.Market {
			return a.Market < c.Market
		}
		if a.PickA.Book != c.PickA.Book {
			return a.PickA.Book < c.PickA.Book
		}
		return a.PickB.Book < c.PickB.Book
	})
	return out
}

func (e *Entry) pair(m types.Market, p types.Period, line string, a, b types.Pick) types.Opportunity {
	name := e.EventName
	if name == "" && e.Home != "" && e.Away != "" {
		name = e.Home + " vs " + e.Away
	}
	return types.Opportunity{
		EventID:   e.EventID,
		EventName: name,
		League:    e.League,
		Home:      e.Home,
		Away:      e.Away,
		Score:     e.Score,
		Market:    m,
		Period:    p,
		LineText:  line,
		PickA:     a,
		PickB:     b,
		KickoffAt: e.KickoffAt,
	}
}
