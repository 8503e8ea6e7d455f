package normalize

import "arb-monitor/pkg/types"

// Field aliases seen across feed dialects. Order matters: the first populated
// key wins. New dialects are added here, not in the extractors.
var (
	eventIDKeys   = []string{"event_id", "eventId", "eventID", "match_id", "matchId", "fixture_id", "fixtureId", "mid", "id"}
	eventNameKeys = []string{"event_name", "eventName", "event", "match", "match_name", "matchName", "name", "title"}
	leagueKeys    = []string{"league", "league_name", "leagueName", "competition", "tournament", "lg"}
	homeKeys      = []string{"home", "home_team", "homeTeam", "home_name", "homeName", "team1", "team_home"}
	awayKeys      = []string{"away", "away_team", "awayTeam", "away_name", "awayName", "team2", "team_away"}
	scoreKeys     = []string{"score", "scores", "ss", "current_score", "currentScore"}
	marketKeys    = []string{"market", "market_type", "marketType", "mkt", "bet_type", "betType", "play_type", "playType"}
	periodKeys    = []string{"period", "half", "stage", "phase", "period_type", "periodType", "scope", "market_type", "marketType"}
	lineTextKeys  = []string{"line_text", "lineText", "line", "handicap", "hdp", "total", "points", "pan"}
	lineNumKeys   = []string{"line_numeric", "lineNumeric", "line_value", "lineValue"}
	kickoffKeys   = []string{"kickoff_at", "kickoffAt", "kickoff", "start_time", "startTime", "start_at", "startAt", "match_time", "matchTime", "commence_time"}

	pickAKeys = []string{"pickA", "pick_a", "picka", "sideA", "side_a", "legA", "leg_a", "a"}
	pickBKeys = []string{"pickB", "pick_b", "pickb", "sideB", "side_b", "legB", "leg_b", "b"}
	picksKeys = []string{"picks", "legs", "sides", "selections"}

	bookKeys      = []string{"book", "bk", "book_name", "bookName", "bookmaker", "site", "company", "provider"}
	selectionKeys = []string{"selection", "sel", "side", "pick", "outcome", "bet", "direction"}
	oddsKeys      = []string{"odds", "odd", "price", "water", "o"}

	odds1Keys      = []string{"odds1", "odd1", "o1"}
	odds2Keys      = []string{"odds2", "odd2", "o2"}
	company1Keys   = []string{"company1", "book1", "company_a", "companyA"}
	company2Keys   = []string{"company2", "book2", "company_b", "companyB"}
	companyKeys    = []string{"company", "company_name", "companyName", "book", "bookmaker"}
	companyIDKeys  = []string{"companyId", "company_id", "companyID", "cid"}
	marketCodeKeys = []string{"market_type", "marketType", "mtype", "play_type", "playType", "type"}

	heartbeatTSKeys = []string{"ts", "timestamp", "time", "t"}
)

// Message envelope vocabulary.
var (
	heartbeatTypes = set("", "ping", "pong", "hello", "heartbeat", "hb")
	snapshotTypes  = set("snapshot", "full", "list")
	updateTypes    = set("opportunity", "delta", "change", "upd", "update")

	typeKeys    = []string{"type", "msg_type", "msgType"}
	listKeys    = []string{"data", "opps", "items", "list", "rows"}
	recordKeys  = []string{"data", "opp", "item", "record"}
	wrapperKeys = []string{"payload", "result", "body", "message", "msg"}
)

// flatPair describes a dialect where both sides sit side by side on the record.
type flatPair struct {
	market       types.Market
	selA, selB   types.Selection
	oddsA, oddsB []string
	bookA, bookB []string
}

var flatPairs = []flatPair{
	{
		market: types.MarketOU, selA: types.Over, selB: types.Under,
		oddsA: []string{"over_odds", "overOdds", "odds_over", "oddsOver", "over"},
		oddsB: []string{"under_odds", "underOdds", "odds_under", "oddsUnder", "under"},
		bookA: []string{"over_book", "overBook", "book_over", "bookOver"},
		bookB: []string{"under_book", "underBook", "book_under", "bookUnder"},
	},
	{
		market: types.MarketAH, selA: types.Home, selB: types.Away,
		oddsA: []string{"home_odds", "homeOdds", "odds_home", "oddsHome"},
		oddsB: []string{"away_odds", "awayOdds", "odds_away", "oddsAway"},
		bookA: []string{"home_book", "homeBook", "book_home", "bookHome"},
		bookB: []string{"away_book", "awayBook", "book_away", "bookAway"},
	},
}

// selectionSynonyms maps lower-case selection spellings to canonical tags.
var selectionSynonyms = map[string]types.Selection{
	"over": types.Over, "o": types.Over, "ov": types.Over, "overs": types.Over, "big": types.Over,
	"大": types.Over, "大球": types.Over, "大分": types.Over,
	"under": types.Under, "u": types.Under, "un": types.Under, "unders": types.Under, "small": types.Under,
	"小": types.Under, "小球": types.Under, "小分": types.Under,
	"home": types.Home, "h": types.Home, "1": types.Home, "host": types.Home,
	"主": types.Home, "主队": types.Home, "主胜": types.Home,
	"away": types.Away, "a": types.Away, "2": types.Away, "guest": types.Away, "visitor": types.Away,
	"客": types.Away, "客队": types.Away, "客胜": types.Away,
}

// bookSynonyms maps known alternative spellings to the canonical book key.
// Unknown books pass through lower-cased.
var bookSynonyms = map[string]string{
	"pinnacle": "pinnacle", "pin": "pinnacle", "pinny": "pinnacle", "ps3838": "pinnacle", "平博": "pinnacle",
	"singbet": "singbet", "crown": "singbet", "hg": "singbet", "皇冠": "singbet",
	"188bet": "188bet", "188": "188bet", "金宝博": "188bet",
	"sbobet": "sbobet", "sbo": "sbobet", "利记": "sbobet",
	"parimatch": "parimatch", "pari": "parimatch",
	"bet365": "bet365", "b365": "bet365",
}

// Market hints. Short codes match whole tokens; words match as substrings.
var (
	ahTokens = set("ah", "hdp", "asian", "spread", "6")
	ouTokens = set("ou", "o/u", "tot", "totals", "2")
	ahWords  = []string{"handicap", "让球", "让分", "亚盘"}
	ouWords  = []string{"total", "over/under", "o/u", "大小"}
)

// Period hints.
var (
	htTokens = set("ht", "1h", "h1", "fh", "1st", "half", "halftime")
	ftTokens = set("ft", "full", "fulltime", "match", "game")
	htWords  = []string{"first half", "1st half", "half time", "上半", "半场"}
	ftWords  = []string{"full time", "全场"}
)

// halfFlagKeys hold booleans (or 0/1) marking a first-half market.
var halfFlagKeys = []string{"is_half", "isHalf", "first_half", "firstHalf", "half"}

func set(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
