package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"arb-monitor/internal/config"
	"arb-monitor/pkg/types"
)

// Tone is one step of the alert sound: play FreqHz starting At after onset.
type Tone struct {
	FreqHz int           `json:"freq_hz"`
	At     time.Duration `json:"at_ns"`
}

// Beep is the short three-tone alert pattern.
var Beep = []Tone{{FreqHz: 800}, {FreqHz: 1000, At: 100 * time.Millisecond}, {FreqHz: 800, At: 200 * time.Millisecond}}

// Alert is one announcement, already gated by the notify settings.
type Alert struct {
	Title           string                `json:"title"`
	Body            string                `json:"body"`
	Result          types.ArbitrageResult `json:"result"`
	Toast           bool                  `json:"toast"`
	ToastDurationMS int64                 `json:"toast_duration_ms"`
	Sound           []Tone                `json:"sound,omitempty"`
	System          bool                  `json:"system"`    // the dashboard should raise an OS notification
	Delivered       bool                  `json:"delivered"` // the Notifier accepted it
	At              time.Time             `json:"at"`
}

// Sink receives every alert that asks for a toast, a sound or a system
// notification (the dashboard).
type Sink interface {
	PublishAlert(a Alert)
}

// Notifier delivers OS-level or out-of-band notifications.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Dispatcher fans an alert out to the channels enabled in NotifySettings.
type Dispatcher struct {
	sink     Sink
	notifier Notifier
	limiter  *TokenBucket
	logger   *slog.Logger
}

// NewDispatcher wires the channels. Any of sink, notifier and limiter may be nil.
func NewDispatcher(sink Sink, notifier Notifier, limiter *TokenBucket, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:     sink,
		notifier: notifier,
		limiter:  limiter,
		logger:   logger.With("component", "alert"),
	}
}

// Dispatch announces res and returns what was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, res types.ArbitrageResult, n config.NotifySettings) Alert {
	title, body := Compose(res)
	a := Alert{
		Title:  title,
		Body:   body,
		Result: res,
		Toast:  n.ToastEnabled,
		System: n.SystemEnabled,
		At:     time.Now(),
	}
	if a.Toast {
		secs := n.ToastDurationS
		if secs <= 0 {
			secs = 5
		}
		a.ToastDurationMS = int64(secs) * 1000
	}
	if n.SoundEnabled {
		a.Sound = Beep
	}

	if a.System && d.notifier != nil {
		switch {
		case d.limiter != nil && !d.limiter.Allow():
			d.logger.Warn("system notification throttled", "signature", res.Signature)
		default:
			if err := d.notifier.Notify(ctx, title, body); err != nil {
				d.logger.Warn("system notification failed", "error", err)
			} else {
				a.Delivered = true
			}
		}
	}

	if d.sink != nil && (a.Toast || len(a.Sound) > 0 || a.System) {
		d.sink.PublishAlert(a)
	}

	d.logger.Info("arbitrage alert",
		"event", res.Opportunity.EventName,
		"market", res.Opportunity.Market,
		"line", res.Opportunity.Line(),
		"profit", res.Profit,
		"toast", a.Toast,
		"sound", len(a.Sound) > 0,
		"system", a.System,
		"delivered", a.Delivered,
	)
	return a
}

// Compose renders the alert title and body.
func Compose(res types.ArbitrageResult) (title, body string) {
	opp := res.Opportunity
	market := MarketName(opp.Market) + " " + opp.Line()
	if opp.Period == types.PeriodHT {
		market += " (1H)"
	}

	var b strings.Builder
	if opp.EventName != "" {
		b.WriteString(opp.EventName)
		b.WriteString(" | ")
	}
	fmt.Fprintf(&b, "A %s: %s %s, water %s, fixed stake %s; ",
		res.PickA.Book, market, SelectionName(res.PickA.Selection), res.WaterA, FormatMoney(res.StakeA))
	fmt.Fprintf(&b, "B %s: %s %s, water %s, stake %s. ",
		res.PickB.Book, market, SelectionName(res.PickB.Selection), res.WaterB, FormatMoney(res.StakeB))
	fmt.Fprintf(&b, "Balanced profit: %s.", FormatMoney(res.Profit))
	return "Arbitrage opportunity", b.String()
}

// MarketName is the display name of a market.
func MarketName(m types.Market) string {
	if m == types.MarketAH {
		return "Handicap"
	}
	return "Over/Under"
}

// SelectionName is the display name of a selection.
func SelectionName(s types.Selection) string {
	switch s {
	case types.Over:
		return "Over"
	case types.Under:
		return "Under"
	case types.Home:
		return "Home"
	case types.Away:
		return "Away"
	}
	return string(s)
}

// FormatMoney renders a whole amount with thousands separators.
func FormatMoney(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
