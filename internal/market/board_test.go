package market

import (
	"sync"
	"testing"
	"time"

	"arb-monitor/pkg/types"
)

var t0 = time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC)

func newTestBoard() (*Board, *time.Time) {
	b := NewBoard()
	now := t0
	b.now = func() time.Time { return now }
	return b, &now
}

func ouOpp(eventID, bookOver string, over float64, bookUnder string, under float64) types.Opportunity {
	return types.Opportunity{
		EventID:   eventID,
		EventName: "Home FC vs Away FC",
		League:    "EPL",
		Home:      "Home FC",
		Away:      "Away FC",
		Market:    types.MarketOU,
		Period:    types.PeriodFT,
		LineText:  "2.5",
		PickA:     types.Pick{Book: bookOver, Selection: types.Over, Odds: over},
		PickB:     types.Pick{Book: bookUnder, Selection: types.Under, Odds: under},
	}
}

func TestUpsertCreatesEntry(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95))

	e, ok := b.Get("E1")
	if !ok {
		t.Fatal("entry not created")
	}
	if len(e.Books) != 2 {
		t.Errorf("books = %v, want pinnacle and 188bet", e.Books)
	}
	q := e.OU[BookPeriod{Book: "pinnacle", Period: types.PeriodFT}]
	if q.Over != 1.93 || q.Under != 0 || q.Line != "2.5" {
		t.Errorf("pinnacle quote = %+v", q)
	}
	q = e.OU[BookPeriod{Book: "188bet", Period: types.PeriodFT}]
	if q.Under != 1.95 || q.Over != 0 {
		t.Errorf("188bet quote = %+v", q)
	}
	if !e.UpdatedAt.Equal(t0) {
		t.Errorf("updatedAt = %v, want %v", e.UpdatedAt, t0)
	}
}

func TestUpsertIgnoresInvalid(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("E1", "pinnacle", 0, "188bet", 1.95))
	b.Upsert(ouOpp("", "pinnacle", 1.9, "188bet", 1.95))
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestMergeNeverBlanks(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	first := ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95)
	first.Score = "1-0"
	b.Upsert(first)

	second := ouOpp("E1", "pinnacle", 1.90, "188bet", 1.97)
	second.Score = ""
	second.League = ""
	b.Upsert(second)

	e, _ := b.Get("E1")
	if e.Score != "1-0" {
		t.Errorf("score = %q, want 1-0", e.Score)
	}
	if e.League != "EPL" {
		t.Errorf("league = %q, want EPL", e.League)
	}
	if q := e.OU[BookPeriod{"pinnacle", types.PeriodFT}]; q.Over != 1.90 {
		t.Errorf("over not updated: %+v", q)
	}
}

func TestSidesArriveSeparately(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	// pinnacle's over arrives first, its under in a later message.
	b.Upsert(ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95))
	b.Upsert(ouOpp("E1", "sbobet", 1.80, "pinnacle", 2.01))

	e, _ := b.Get("E1")
	q := e.OU[BookPeriod{"pinnacle", types.PeriodFT}]
	if q.Over != 1.93 || q.Under != 2.01 {
		t.Errorf("pinnacle quote = %+v, want both sides", q)
	}
}

func TestLineMoveDropsStaleSide(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95))
	moved := ouOpp("E1", "188bet", 1.90, "pinnacle", 2.40)
	moved.LineText = "3.0"
	b.Upsert(moved)

	e, _ := b.Get("E1")
	q := e.OU[BookPeriod{"pinnacle", types.PeriodFT}]
	if q != (OUQuote{Line: "3.0", Under: 2.40}) {
		t.Errorf("pinnacle quote = %+v, want only the 3.0 under", q)
	}

	for _, opp := range b.Opportunities() {
		if opp.Line() != moved.Line() {
			t.Errorf("priced a pair across lines: %+v", opp)
		}
	}
}

func TestHandicapRouting(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(types.Opportunity{
		EventID: "E2", Market: types.MarketAH, Period: types.PeriodHT, LineText: "-0.5",
		PickA: types.Pick{Book: "parimatch", Selection: types.Home, Odds: 2.02},
		PickB: types.Pick{Book: "singbet", Selection: types.Away, Odds: 1.98},
	})

	e, _ := b.Get("E2")
	if len(e.OU) != 0 {
		t.Errorf("OU = %v, want empty", e.OU)
	}
	q := e.AH[BookPeriod{"parimatch", types.PeriodHT}]
	if q.Home != 2.02 || q.Line != "-0.5" {
		t.Errorf("AH quote = %+v", q)
	}
}

func TestKickoffGuard(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	opp := ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95)
	opp.KickoffAt = time.UnixMilli(77)
	b.Upsert(opp)
	if e, _ := b.Get("E1"); !e.KickoffAt.IsZero() {
		t.Fatalf("match minute adopted as kickoff: %v", e.KickoffAt)
	}

	ko := time.UnixMilli(1760000000123)
	opp.KickoffAt = ko
	b.Upsert(opp)
	if e, _ := b.Get("E1"); !e.KickoffAt.Equal(ko) {
		t.Fatalf("kickoff = %v, want %v", e.KickoffAt, ko)
	}

	// sub-second jitter is ignored
	opp.KickoffAt = ko.Add(500 * time.Millisecond)
	b.Upsert(opp)
	if e, _ := b.Get("E1"); !e.KickoffAt.Equal(ko) {
		t.Errorf("kickoff churned to %v", e.KickoffAt)
	}

	opp.KickoffAt = ko.Add(time.Hour)
	b.Upsert(opp)
	if e, _ := b.Get("E1"); !e.KickoffAt.Equal(ko.Add(time.Hour)) {
		t.Errorf("kickoff not moved: %v", e.KickoffAt)
	}
}

func TestReplaceDropsOldEvents(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("OLD1", "pinnacle", 1.9, "188bet", 1.9))
	b.Upsert(ouOpp("OLD2", "pinnacle", 1.9, "188bet", 1.9))

	b.Replace([]types.Opportunity{
		ouOpp("NEW1", "pinnacle", 1.9, "188bet", 1.9),
		ouOpp("NEW2", "pinnacle", 1.9, "188bet", 1.9),
	})

	entries := b.Entries()
	if len(entries) != 2 || entries[0].EventID != "NEW1" || entries[1].EventID != "NEW2" {
		t.Fatalf("entries after replace = %v", entries)
	}
}

func TestClearKeepsSequence(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("E1", "pinnacle", 1.9, "188bet", 1.9))
	b.Upsert(ouOpp("E2", "pinnacle", 1.9, "188bet", 1.9))
	before := b.Rows(nil, SortByLeague)

	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("Len after Clear = %d", b.Len())
	}
	b.Upsert(ouOpp("E2", "pinnacle", 1.9, "188bet", 1.9))
	b.Upsert(ouOpp("E1", "pinnacle", 1.9, "188bet", 1.9))
	after := b.Rows(nil, SortByLeague)

	if len(before) != 4 || len(after) != 4 {
		t.Fatalf("rows before=%d after=%d, want 4", len(before), len(after))
	}
	for i := range before {
		if before[i].EventID != after[i].EventID || before[i].Book != after[i].Book || before[i].Seq != after[i].Seq {
			t.Errorf("row %d moved: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestRowsFilterAndSort(t *testing.T) {
	t.Parallel()
	b, now := newTestBoard()

	late := ouOpp("LATE", "pinnacle", 1.9, "188bet", 1.9)
	late.League = "Serie A"
	late.KickoffAt = time.UnixMilli(1760000000000).Add(2 * time.Hour)
	b.Upsert(late)

	early := ouOpp("EARLY", "pinnacle", 1.9, "sbobet", 1.9)
	early.League = "Bundesliga"
	early.KickoffAt = time.UnixMilli(1760000000000)
	b.Upsert(early)

	*now = now.Add(time.Minute)
	b.Upsert(ouOpp("NOKO", "pinnacle", 1.9, "188bet", 1.9))

	enabled := func(book string) bool { return book != "sbobet" }

	rows := b.Rows(enabled, SortByTime)
	var got []string
	for _, r := range rows {
		if r.Book == "sbobet" {
			t.Fatalf("disabled book in rows: %+v", r)
		}
		got = append(got, r.EventID+"/"+r.Book)
	}
	want := []string{"EARLY/pinnacle", "LATE/pinnacle", "LATE/188bet", "NOKO/pinnacle", "NOKO/188bet"}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rows = %v, want %v", got, want)
		}
	}

	rows = b.Rows(enabled, SortByLeague)
	if rows[0].League != "Bundesliga" || rows[len(rows)-1].League != "Serie A" {
		t.Errorf("league order: first=%q last=%q", rows[0].League, rows[len(rows)-1].League)
	}
}

func TestOpportunitiesPairsAcrossBooks(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	b.Upsert(ouOpp("E1", "pinnacle", 1.93, "188bet", 1.95))
	b.Upsert(ouOpp("E1", "188bet", 1.88, "pinnacle", 2.00))

	opps := b.Opportunities()
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2: %+v", len(opps), opps)
	}
	// sorted by pickA book
	if opps[0].PickA.Book != "188bet" || opps[0].PickB.Book != "pinnacle" {
		t.Errorf("first pair = %s/%s", opps[0].PickA.Book, opps[0].PickB.Book)
	}
	if opps[1].PickA != (types.Pick{Book: "pinnacle", Selection: types.Over, Odds: 1.93}) {
		t.Errorf("second pickA = %+v", opps[1].PickA)
	}
	if opps[1].PickB != (types.Pick{Book: "188bet", Selection: types.Under, Odds: 1.95}) {
		t.Errorf("second pickB = %+v", opps[1].PickB)
	}
}

func TestOpportunitiesRequireSameLine(t *testing.T) {
	t.Parallel()
	b, _ := newTestBoard()

	a := ouOpp("E1", "pinnacle", 1.93, "pinnacle", 1.9)
	b.Upsert(a)
	c := ouOpp("E1", "188bet", 1.93, "188bet", 1.95)
	c.LineText = "2.75"
	b.Upsert(c)

	if opps := b.Opportunities(); len(opps) != 0 {
		t.Errorf("paired different lines: %+v", opps)
	}
}

func TestBoardConcurrentAccess(t *testing.T) {
	t.Parallel()
	b := NewBoard()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Upsert(ouOpp("E1", "pinnacle", 1.9, "188bet", 1.9))
				_ = b.Rows(nil, SortByTime)
				_ = b.Opportunities()
			}
		}()
	}
	wg.Wait()
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestParseSortOrder(t *testing.T) {
	t.Parallel()
	if ParseSortOrder(" League ") != SortByLeague {
		t.Error("league not parsed")
	}
	if ParseSortOrder("") != SortByTime || ParseSortOrder("nonsense") != SortByTime {
		t.Error("default should be time")
	}
}
