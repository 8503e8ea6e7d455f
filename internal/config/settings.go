package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Datasource modes.
const (
	ModeAuto   = "auto"   // use feed.default_url
	ModeCustom = "custom" // use the user-supplied URL
)

// Transports.
const (
	TransportWS  = "ws"
	TransportSSE = "sse"
)

// Rebate schemes. SchemeNetLoss is deprecated and kept for configurations
// written before turnover rebates became the only supported model.
const (
	SchemeTurnover = "turnover"
	SchemeNetLoss  = "net_loss"
)

// Settings is the user-editable configuration the core reads. JSON tags
// match the persisted blob layout.
type Settings struct {
	Datasource DatasourceSettings `mapstructure:"datasource" json:"datasource"`
	Books      map[string]bool    `mapstructure:"books" json:"books"`
	Rebates    RebateSettings     `mapstructure:"rebates" json:"rebates"`
	Stake      StakeSettings      `mapstructure:"stake" json:"stake"`
	Notify     NotifySettings     `mapstructure:"notify" json:"notify"`
}

// DatasourceSettings selects the feed endpoint.
type DatasourceSettings struct {
	Mode      string `mapstructure:"mode" json:"wsMode"`
	URL       string `mapstructure:"url" json:"wsUrl"`
	Token     string `mapstructure:"token" json:"token"`
	Transport string `mapstructure:"transport" json:"transport"`
	UseMock   bool   `mapstructure:"use_mock" json:"useMock"`
}

// RebatePlatform is one rebate-paying book and its flat turnover rate.
type RebatePlatform struct {
	Book   string  `mapstructure:"book" json:"book"`
	Rate   float64 `mapstructure:"rate" json:"rate"`
	Scheme string  `mapstructure:"scheme" json:"scheme,omitempty"`
}

// RebateSettings holds the two rebate platforms. Their books also define the
// pair of books eligible for alerts.
type RebateSettings struct {
	A RebatePlatform `mapstructure:"a" json:"a"`
	B RebatePlatform `mapstructure:"b" json:"b"`
}

// StakeSettings designates the fixed-stake book.
type StakeSettings struct {
	ABook     string `mapstructure:"a_book" json:"aBook"`
	AmountA   int64  `mapstructure:"amount_a" json:"amountA"`
	MinProfit int64  `mapstructure:"min_profit" json:"minProfit"`
}

// NotifySettings gates the alert sinks.
type NotifySettings struct {
	SystemEnabled  bool `mapstructure:"system_enabled" json:"systemEnabled"`
	SoundEnabled   bool `mapstructure:"sound_enabled" json:"soundEnabled"`
	ToastEnabled   bool `mapstructure:"toast_enabled" json:"toastEnabled"`
	ToastDurationS int  `mapstructure:"toast_duration_s" json:"toastDurationS"`
	AutoHideRowS   int  `mapstructure:"auto_hide_row_s" json:"autoHideRowS"`
}

// DefaultSettings mirrors the dashboard defaults.
func DefaultSettings() Settings {
	return Settings{
		Datasource: DatasourceSettings{Mode: ModeAuto, Transport: TransportWS, UseMock: true},
		Books:      map[string]bool{},
		Rebates: RebateSettings{
			A: RebatePlatform{Book: "parimatch", Rate: 0.006, Scheme: SchemeTurnover},
			B: RebatePlatform{Book: "singbet", Rate: 0.006, Scheme: SchemeTurnover},
		},
		Stake: StakeSettings{ABook: "parimatch", AmountA: 10000, MinProfit: 0},
		Notify: NotifySettings{
			SoundEnabled:   true,
			ToastEnabled:   true,
			ToastDurationS: 5,
			AutoHideRowS:   30,
		},
	}
}

// Clone returns a deep copy; Books is the only reference field.
func (s Settings) Clone() Settings {
	out := s
	out.Books = make(map[string]bool, len(s.Books))
	for k, v := range s.Books {
		out.Books[k] = v
	}
	return out
}

// Overlay applies a persisted JSON blob on top of s. Sections and book flags
// absent from the blob keep their current values.
func (s Settings) Overlay(blob []byte) (Settings, error) {
	out := s.Clone()
	if len(blob) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(blob, &out); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	if out.Books == nil {
		out.Books = make(map[string]bool)
	}
	out.normalize()
	return out, nil
}

func (s *Settings) normalize() {
	books := make(map[string]bool, len(s.Books))
	for k, v := range s.Books {
		books[NormBook(k)] = v
	}
	s.Books = books
	s.Rebates.A.Book = NormBook(s.Rebates.A.Book)
	s.Rebates.B.Book = NormBook(s.Rebates.B.Book)
	s.Stake.ABook = NormBook(s.Stake.ABook)
	s.Datasource.URL = strings.TrimSpace(s.Datasource.URL)
}

// Validate checks value ranges of the editable settings.
func (s Settings) Validate() error {
	switch s.Datasource.Mode {
	case ModeAuto, ModeCustom:
	default:
		return fmt.Errorf("settings.datasource.mode must be one of: auto, custom")
	}
	switch s.Datasource.Transport {
	case TransportWS, TransportSSE:
	default:
		return fmt.Errorf("settings.datasource.transport must be one of: ws, sse")
	}
	for _, p := range []RebatePlatform{s.Rebates.A, s.Rebates.B} {
		if p.Rate < 0 || p.Rate >= 1 {
			return fmt.Errorf("rebate rate for %q must be in [0, 1)", p.Book)
		}
		switch p.Scheme {
		case "", SchemeTurnover, SchemeNetLoss:
		default:
			return fmt.Errorf("rebate scheme for %q must be turnover or net_loss", p.Book)
		}
	}
	if s.Stake.AmountA < 0 {
		return fmt.Errorf("settings.stake.amount_a must be >= 0")
	}
	if s.Notify.ToastDurationS < 0 || s.Notify.AutoHideRowS < 0 {
		return fmt.Errorf("settings.notify durations must be >= 0")
	}
	return nil
}

// NormBook lower-cases and trims a book name.
func NormBook(book string) string {
	return strings.ToLower(strings.TrimSpace(book))
}

// BookEnabled reports whether the book is switched on.
func (s Settings) BookEnabled(book string) bool {
	return s.Books[NormBook(book)]
}

// EnabledBooks returns the enabled books, sorted.
func (s Settings) EnabledBooks() []string {
	out := make([]string, 0, len(s.Books))
	for b, on := range s.Books {
		if on {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// RebatePlatformFor returns the rebate platform configured for book, if any.
func (s Settings) RebatePlatformFor(book string) (RebatePlatform, bool) {
	b := NormBook(book)
	if b == "" {
		return RebatePlatform{}, false
	}
	if s.Rebates.A.Book == b {
		return s.Rebates.A, true
	}
	if s.Rebates.B.Book == b {
		return s.Rebates.B, true
	}
	return RebatePlatform{}, false
}

// RebateRate returns the configured rate for book, or 0.
func (s Settings) RebateRate(book string) float64 {
	p, ok := s.RebatePlatformFor(book)
	if !ok {
		return 0
	}
	return p.Rate
}

// IsAlertPair reports whether the two books are exactly the rebate A/B pair, in either order.
func (s Settings) IsAlertPair(bookA, bookB string) bool {
	a, b := NormBook(bookA), NormBook(bookB)
	pa, pb := s.Rebates.A.Book, s.Rebates.B.Book
	if pa == "" || pb == "" {
		return false
	}
	return (a == pa && b == pb) || (a == pb && b == pa)
}

// Endpoint resolves the feed URL for these settings. ok is false when custom
// mode is selected with a blank URL, which means "awaiting configuration".
func (d DatasourceSettings) Endpoint(defaultURL, mockURL string) (url string, ok bool) {
	if d.UseMock {
		return mockURL, mockURL != ""
	}
	if d.Mode == ModeCustom {
		u := strings.TrimSpace(d.URL)
		return u, u != ""
	}
	return defaultURL, defaultURL != ""
}
