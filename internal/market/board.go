// Package market maintains the in-memory market board.
//
// Board mirrors the latest quotes per event, per bookmaker and per period.
// It is fed from normalized opportunities:
//   - Upsert merges one opportunity (incremental update)
//   - Replace swaps the whole board for a snapshot in one critical section
//   - Clear wipes it on datasource changes
//
// The two sides of a market may arrive in separate messages; each (book,
// period) quote keeps whichever side it saw last, so they still combine into
// one bettable pair. The Board is concurrency-safe (RWMutex protected).
package market

import (
	"sort"
	"strings"
	"sync"
	"time"

	"arb-monitor/pkg/types"
)

// minKickoffMillis rejects kickoff candidates that are not absolute times.
const minKickoffMillis = 1e12

// kickoffChurn is the minimum change before a stored kickoff is replaced.
const kickoffChurn = time.Second

// BookPeriod keys per-book quotes inside an entry.
type BookPeriod struct {
	Book   string       `json:"book"`
	Period types.Period `json:"period"`
}

// OUQuote is one book's over/under quote. Zero odds mean "side not seen yet".
type OUQuote struct {
	Line  string  `json:"line"`
	Over  float64 `json:"over,omitempty"`
	Under float64 `json:"under,omitempty"`
}

// AHQuote is one book's handicap quote.
type AHQuote struct {
	Line string  `json:"line"`
	Home float64 `json:"home,omitempty"`
	Away float64 `json:"away,omitempty"`
}

// Entry is everything known about one event.
type Entry struct {
	EventID   string
	EventName string
	League    string
	Home      string
	Away      string
	Score     string
	Books     map[string]struct{}
	OU        map[BookPeriod]OUQuote
	AH        map[BookPeriod]AHQuote
	UpdatedAt time.Time
	KickoffAt time.Time // zero when unknown
}

func newEntry(eventID string) *Entry {
	return &Entry{
		EventID: eventID,
		Books:   make(map[string]struct{}),
		OU:      make(map[BookPeriod]OUQuote),
		AH:      make(map[BookPeriod]AHQuote),
	}
}

func (e *Entry) clone() Entry {
	out := *e
	out.Books = make(map[string]struct{}, len(e.Books))
	for b := range e.Books {
		out.Books[b] = struct{}{}
	}
	out.OU = make(map[BookPeriod]OUQuote, len(e.OU))
	for k, v := range e.OU {
		out.OU[k] = v
	}
	out.AH = make(map[BookPeriod]AHQuote, len(e.AH))
	for k, v := range e.AH {
		out.AH[k] = v
	}
	return out
}

// Board is the market board.
type Board struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	seq     map[string]uint64 // event|book|period -> first-seen order, survives Clear
	nextSeq uint64
	now     func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		entries: make(map[string]*Entry),
		seq:     make(map[string]uint64),
		now:     time.Now,
	}
}

// Upsert merges one opportunity into the board.
func (b *Board) Upsert(opp types.Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upsertLocked(opp)
}

// Replace clears the board and loads opps in one critical section, so
// readers never observe the empty intermediate state.
func (b *Board) Replace(opps []types.Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*Entry)
	for _, opp := range opps {
		b.upsertLocked(opp)
	}
}

// Clear wipes all entries. Row sequence numbers are kept so a row that
// reappears keeps its position.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*Entry)
}

func (b *Board) upsertLocked(opp types.Opportunity) {
	if opp.EventID == "" || !opp.Valid() {
		return
	}
	e, ok := b.entries[opp.EventID]
	if !ok {
		e = newEntry(opp.EventID)
		b.entries[opp.EventID] = e
	}

	// Blank values never overwrite known ones.
	mergeString(&e.EventName, opp.EventName)
	mergeString(&e.League, opp.League)
	mergeString(&e.Home, opp.Home)
	mergeString(&e.Away, opp.Away)
	mergeString(&e.Score, opp.Score)

	e.UpdatedAt = b.now()
	if k := opp.KickoffAt; plausibleKickoff(k) {
		if e.KickoffAt.IsZero() || absDuration(k.Sub(e.KickoffAt)) > kickoffChurn {
			e.KickoffAt = k
		}
	}

	period := opp.Period
	if period == "" {
		period = types.PeriodFT
	}
	line := opp.Line()
	for _, p := range []types.Pick{opp.PickA, opp.PickB} {
		book := strings.ToLower(strings.TrimSpace(p.Book))
		if book == "" {
			continue
		}
		e.Books[book] = struct{}{}
		key := BookPeriod{Book: book, Period: period}
		b.assignSeq(opp.EventID, key)

		switch opp.Market {
		case types.MarketAH:
			q := e.AH[key]
			if line != "" && q.Line != line {
				// A moved line invalidates the other side's odds.
				q = AHQuote{Line: line}
			}
			switch p.Selection {
			case types.Home:
				q.Home = p.Odds
			case types.Away:
				q.Away = p.Odds
			}
			e.AH[key] = q
		default:
			q := e.OU[key]
			if line != "" && q.Line != line {
				q = OUQuote{Line: line}
			}
			switch p.Selection {
			case types.Over:
				q.Over = p.Odds
			case types.Under:
				q.Under = p.Odds
			}
			e.OU[key] = q
		}
	}
}

func (b *Board) assignSeq(eventID string, key BookPeriod) {
	id := eventID + "|" + key.Book + "|" + string(key.Period)
	if _, ok := b.seq[id]; ok {
		return
	}
	b.nextSeq++
	b.seq[id] = b.nextSeq
}

// Get returns a copy of the entry for eventID.
func (b *Board) Get(eventID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[eventID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns copies of all entries, ordered by event ID.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

// Books returns every book seen on the board, sorted.
func (b *Board) Books() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := make(map[string]struct{})
	for _, e := range b.entries {
		for book := range e.Books {
			set[book] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for book := range set {
		out = append(out, book)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of events on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func mergeString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func plausibleKickoff(t time.Time) bool {
	return !t.IsZero() && t.UnixMilli() >= minKickoffMillis
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
