package types

import "testing"

func TestSelectionOpposite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sel  Selection
		want Selection
	}{
		{Over, Under},
		{Under, Over},
		{Home, Away},
		{Away, Home},
		{Selection("draw"), ""},
	}

	for _, tt := range tests {
		if got := tt.sel.Opposite(); got != tt.want {
			t.Errorf("Selection(%q).Opposite() = %q, want %q", tt.sel, got, tt.want)
		}
	}
}

func TestSelectionMarket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sel    Selection
		want   Market
		wantOK bool
	}{
		{Over, MarketOU, true},
		{Under, MarketOU, true},
		{Home, MarketAH, true},
		{Away, MarketAH, true},
		{Selection("x"), "", false},
	}

	for _, tt := range tests {
		got, ok := tt.sel.Market()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Selection(%q).Market() = (%q, %v), want (%q, %v)", tt.sel, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestOpportunityLine(t *testing.T) {
	t.Parallel()

	num := -0.25
	if got := (Opportunity{LineText: "-0/0.5", LineNumeric: &num}).Line(); got != "-0/0.5" {
		t.Errorf("Line() = %q, want text form", got)
	}
	if got := (Opportunity{LineNumeric: &num}).Line(); got != "-0.25" {
		t.Errorf("Line() = %q, want -0.25", got)
	}
	if got := (Opportunity{}).Line(); got != "" {
		t.Errorf("Line() = %q, want empty", got)
	}
}

func TestOpportunityValid(t *testing.T) {
	t.Parallel()

	ok := Opportunity{PickA: Pick{Odds: 1.9}, PickB: Pick{Odds: 0.95}}
	if !ok.Valid() {
		t.Error("expected opportunity with positive odds to be valid")
	}
	bad := Opportunity{PickA: Pick{Odds: 1.9}, PickB: Pick{Odds: 0}}
	if bad.Valid() {
		t.Error("expected opportunity with zero odds to be invalid")
	}
}
