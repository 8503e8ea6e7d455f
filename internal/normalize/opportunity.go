// Package normalize turns heterogeneous feed payloads into canonical messages.
//
// Feeds disagree on almost everything: envelope shape, field names, odds
// format, how a market is named. The Normalizer absorbs those differences:
//   - NormalizeMessage classifies a decoded payload as heartbeat, snapshot or
//     single-opportunity update
//   - NormalizeOpportunity maps one raw record onto types.Opportunity by trying
//     an ordered list of dialect extractors; the first complete pair wins
//
// Malformed input is never an error here. A record that cannot be resolved is
// dropped (ok=false) and the rest of the stream carries on.
package normalize

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"arb-monitor/pkg/types"
)

// Normalizer holds the lookup tables that are configurable per deployment.
type Normalizer struct {
	companyBooks map[string]string
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Normalizer. companyBooks maps numeric companyId codes used by
// some feeds to book names; it may be nil.
func New(companyBooks map[string]string, logger *slog.Logger) *Normalizer {
	books := make(map[string]string, len(companyBooks))
	for code, book := range companyBooks {
		books[strings.TrimSpace(code)] = book
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		companyBooks: books,
		logger:       logger.With("component", "normalize"),
		now:          time.Now,
	}
}

// pickSource is a half-resolved pick: the selection may still be missing and
// is filled in once both sides are known.
type pickSource struct {
	book      string
	selection string // raw, not yet mapped
	odds      float64
	hasOdds   bool
}

// extractor recognizes one record dialect. ok=false means "not this dialect".
type extractor struct {
	name string
	fn   func(n *Normalizer, r record, hint types.Market) (a, b pickSource, ok bool)
}

// extractors are tried in order.
var extractors = []extractor{
	{"explicit_picks", (*Normalizer).explicitPicks},
	{"flat_pair", (*Normalizer).flatPair},
	{"company_odds", (*Normalizer).companyOdds},
	{"picks_array", (*Normalizer).picksArray},
}

// NormalizeOpportunity maps one raw record onto a canonical opportunity.
// It returns ok=false if no dialect yields two competing picks with valid odds,
// or if the record carries no usable event identity.
func (n *Normalizer) NormalizeOpportunity(raw map[string]any) (types.Opportunity, bool) {
	r := record(raw)
	hint, _ := marketHint(r)

	var (
		pickA, pickB types.Pick
		resolved     bool
	)
	for _, ex := range extractors {
		a, b, ok := ex.fn(n, r, hint)
		if !ok {
			continue
		}
		pickA, pickB, ok = n.resolvePair(a, b, hint)
		if ok {
			resolved = true
			break
		}
		n.logger.Debug("dialect matched but pair rejected", "dialect", ex.name)
	}
	if !resolved {
		return types.Opportunity{}, false
	}

	opp := types.Opportunity{
		EventName: r.str(eventNameKeys),
		League:    r.str(leagueKeys),
		Home:      r.str(homeKeys),
		Away:      r.str(awayKeys),
		Score:     r.str(scoreKeys),
		Period:    inferPeriod(r),
		PickA:     pickA,
		PickB:     pickB,
	}
	// The selections decide the market; a contradictory text hint loses.
	opp.Market, _ = pickA.Selection.Market()

	if opp.Home == "" || opp.Away == "" {
		if home, away, ok := splitTeams(opp.EventName); ok {
			if opp.Home == "" {
				opp.Home = home
			}
			if opp.Away == "" {
				opp.Away = away
			}
		}
	}
	if opp.EventName == "" && opp.Home != "" && opp.Away != "" {
		opp.EventName = opp.Home + " vs " + opp.Away
	}

	opp.EventID = eventKey(r.str(eventIDKeys), opp)
	if opp.EventID == "" {
		return types.Opportunity{}, false
	}

	opp.LineText = r.str(lineTextKeys)
	if v, ok := r.float(lineNumKeys); ok {
		opp.LineNumeric = &v
	} else if v, ok := parseLine(opp.LineText); ok {
		opp.LineNumeric = &v
	}
	if opp.LineText == "" && opp.LineNumeric != nil {
		opp.LineText = formatLine(*opp.LineNumeric)
	}

	for _, k := range kickoffKeys {
		if ts, ok := PlausibleTimestamp(r[k]); ok {
			opp.KickoffAt = ts
			break
		}
	}

	if !opp.Valid() {
		return types.Opportunity{}, false
	}
	return opp, true
}

// ————————————————————————————————————————————————————————————————————————
// Dialects
// ————————————————————————————————————————————————————————————————————————

// explicitPicks: {"pickA": {"book": .., "selection": .., "odds": ..}, "pickB": {..}}
func (n *Normalizer) explicitPicks(r record, _ types.Market) (pickSource, pickSource, bool) {
	ra, okA := r.sub(pickAKeys)
	rb, okB := r.sub(pickBKeys)
	if !okA || !okB {
		return pickSource{}, pickSource{}, false
	}
	return pickFromRecord(ra), pickFromRecord(rb), true
}

// flatPair: {"over_odds": .., "under_odds": .., "book": ..} or the home/away form,
// with either a shared book or one per side.
func (n *Normalizer) flatPair(r record, _ types.Market) (pickSource, pickSource, bool) {
	shared := r.str(bookKeys)
	for _, fp := range flatPairs {
		oa, okA := r.float(fp.oddsA)
		ob, okB := r.float(fp.oddsB)
		if !okA || !okB {
			continue
		}
		a := pickSource{book: r.str(fp.bookA), selection: string(fp.selA), odds: oa, hasOdds: true}
		b := pickSource{book: r.str(fp.bookB), selection: string(fp.selB), odds: ob, hasOdds: true}
		if a.book == "" {
			a.book = shared
		}
		if b.book == "" {
			b.book = shared
		}
		return a, b, true
	}
	return pickSource{}, pickSource{}, false
}

// companyOdds: {"odds1": .., "odds2": .., "companyId": 3, "type": "2"}.
// Market code "2" is over/under and "6" is handicap.
func (n *Normalizer) companyOdds(r record, hint types.Market) (pickSource, pickSource, bool) {
	o1, ok1 := r.float(odds1Keys)
	o2, ok2 := r.float(odds2Keys)
	if !ok1 || !ok2 {
		return pickSource{}, pickSource{}, false
	}

	shared := r.str(companyKeys)
	if shared == "" {
		if code := r.str(companyIDKeys); code != "" {
			shared = n.companyBooks[code]
			if shared == "" {
				n.logger.Debug("unmapped company id", "company_id", code)
			}
		}
	}
	a := pickSource{book: r.str(company1Keys), odds: o1, hasOdds: true}
	b := pickSource{book: r.str(company2Keys), odds: o2, hasOdds: true}
	if a.book == "" {
		a.book = shared
	}
	if b.book == "" {
		b.book = shared
	}

	market := types.MarketOU
	if m, ok := marketCode(r); ok {
		market = m
	} else if hint != "" {
		market = hint
	}
	if market == types.MarketAH {
		a.selection, b.selection = string(types.Home), string(types.Away)
	} else {
		a.selection, b.selection = string(types.Over), string(types.Under)
	}
	return a, b, true
}

// picksArray: {"picks": [{..}, {..}, ...]}; the first two entries are the pair.
func (n *Normalizer) picksArray(r record, _ types.Market) (pickSource, pickSource, bool) {
	arr, ok := r.list(picksKeys)
	if !ok || len(arr) < 2 {
		return pickSource{}, pickSource{}, false
	}
	ra, okA := asRecord(arr[0])
	rb, okB := asRecord(arr[1])
	if !okA || !okB {
		return pickSource{}, pickSource{}, false
	}
	return pickFromRecord(ra), pickFromRecord(rb), true
}

func pickFromRecord(r record) pickSource {
	p := pickSource{
		book:      r.str(bookKeys),
		selection: r.str(selectionKeys),
	}
	p.odds, p.hasOdds = r.float(oddsKeys)
	return p
}

// ————————————————————————————————————————————————————————————————————————
// Pair resolution
// ————————————————————————————————————————————————————————————————————————

// resolvePair turns two half-resolved picks into canonical picks. A missing
// selection is inferred from the other side, or from the market hint when
// both are missing. The two selections must be competing sides.
func (n *Normalizer) resolvePair(a, b pickSource, hint types.Market) (types.Pick, types.Pick, bool) {
	selA, okA := parseSelection(a.selection)
	selB, okB := parseSelection(b.selection)
	if !okA || !okB {
		n.logger.Debug("unknown selection", "a", a.selection, "b", b.selection)
		return types.Pick{}, types.Pick{}, false
	}
	switch {
	case selA == "" && selB == "":
		if hint == types.MarketAH {
			selA, selB = types.Home, types.Away
		} else {
			selA, selB = types.Over, types.Under
		}
	case selA == "":
		selA = selB.Opposite()
	case selB == "":
		selB = selA.Opposite()
	}
	if selA.Opposite() != selB {
		return types.Pick{}, types.Pick{}, false
	}

	pa, ok := n.pick(a, selA)
	if !ok {
		return types.Pick{}, types.Pick{}, false
	}
	pb, ok := n.pick(b, selB)
	if !ok {
		return types.Pick{}, types.Pick{}, false
	}
	return pa, pb, true
}

func (n *Normalizer) pick(src pickSource, sel types.Selection) (types.Pick, bool) {
	book := n.normBook(src.book)
	if book == "" || !src.hasOdds {
		return types.Pick{}, false
	}
	odds, ok := ToDecimalOdds(src.odds)
	if !ok {
		return types.Pick{}, false
	}
	return types.Pick{Book: book, Selection: sel, Odds: odds}, true
}

// parseSelection maps a raw selection. An empty input is "absent" (ok=true,
// zero value); a non-empty unknown spelling is rejected.
func parseSelection(raw string) (types.Selection, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", true
	}
	sel, ok := selectionSynonyms[s]
	return sel, ok
}

// normBook canonicalizes a book name. Unknown books pass through lower-cased.
func (n *Normalizer) normBook(raw string) string {
	b := strings.ToLower(strings.TrimSpace(raw))
	if b == "" {
		return ""
	}
	if canon, ok := bookSynonyms[b]; ok {
		return canon
	}
	n.logger.Debug("unrecognized book, passing through", "book", b)
	return b
}

// ————————————————————————————————————————————————————————————————————————
// Inference helpers
// ————————————————————————————————————————————————————————————————————————

// marketHint reads textual market hints from the record.
func marketHint(r record) (types.Market, bool) {
	if m, ok := marketCode(r); ok {
		return m, true
	}
	for _, k := range marketKeys {
		if m, ok := classifyMarket(r.str([]string{k})); ok {
			return m, true
		}
	}
	return "", false
}

// marketCode reads the numeric market-type code some feeds use.
func marketCode(r record) (types.Market, bool) {
	switch r.str(marketCodeKeys) {
	case "2":
		return types.MarketOU, true
	case "6":
		return types.MarketAH, true
	}
	return "", false
}

func classifyMarket(text string) (types.Market, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", false
	}
	if _, ok := ahTokens[s]; ok {
		return types.MarketAH, true
	}
	if _, ok := ouTokens[s]; ok {
		return types.MarketOU, true
	}
	for _, w := range ahWords {
		if strings.Contains(s, w) {
			return types.MarketAH, true
		}
	}
	for _, w := range ouWords {
		if strings.Contains(s, w) {
			return types.MarketOU, true
		}
	}
	for _, tok := range tokenize(s) {
		if _, ok := ahTokens[tok]; ok {
			return types.MarketAH, true
		}
		if _, ok := ouTokens[tok]; ok {
			return types.MarketOU, true
		}
	}
	return "", false
}

// inferPeriod looks for first-half markers in flag fields, period fields and
// the market strings. Full time is the default.
func inferPeriod(r record) types.Period {
	if half, ok := r.flag(halfFlagKeys); ok && half {
		return types.PeriodHT
	}
	for _, keys := range [][]string{periodKeys, marketKeys, marketCodeKeys} {
		for _, k := range keys {
			if p, ok := classifyPeriod(r.str([]string{k})); ok {
				return p
			}
		}
	}
	return types.PeriodFT
}

func classifyPeriod(text string) (types.Period, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", false
	}
	for _, w := range htWords {
		if strings.Contains(s, w) {
			return types.PeriodHT, true
		}
	}
	for _, w := range ftWords {
		if strings.Contains(s, w) {
			return types.PeriodFT, true
		}
	}
	for _, tok := range tokenize(s) {
		if _, ok := htTokens[tok]; ok {
			return types.PeriodHT, true
		}
		if _, ok := ftTokens[tok]; ok {
			return types.PeriodFT, true
		}
	}
	return "", false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var teamSeparators = []string{" vs ", " VS ", " Vs ", " v ", " - "}

// splitTeams splits "Home vs Away" style event names.
func splitTeams(name string) (home, away string, ok bool) {
	for _, sep := range teamSeparators {
		if i := strings.Index(name, sep); i > 0 {
			home = strings.TrimSpace(name[:i])
			away = strings.TrimSpace(name[i+len(sep):])
			if home != "" && away != "" {
				return home, away, true
			}
		}
	}
	return "", "", false
}

// eventKey derives a stable event identity: the explicit id, else
// league|home|away, else league|eventName. Synthesized keys are lower-cased
// so casing drift between messages does not split an event.
func eventKey(explicit string, opp types.Opportunity) string {
	if explicit != "" {
		return explicit
	}
	league := strings.ToLower(strings.TrimSpace(opp.League))
	if opp.Home != "" && opp.Away != "" {
		return league + "|" + strings.ToLower(opp.Home) + "|" + strings.ToLower(opp.Away)
	}
	if opp.EventName != "" {
		return league + "|" + strings.ToLower(strings.TrimSpace(opp.EventName))
	}
	return ""
}
