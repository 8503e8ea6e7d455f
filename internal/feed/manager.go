// Package feed owns the connection to the odds feed.
//
// Manager runs an explicit state machine:
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting -> ...
//
// plus AwaitingConfig when the datasource has no usable URL. Frames are
// handed to a Handler synchronously on the read loop, so they are processed
// one at a time in delivery order. Failed attempts retry forever with capped
// exponential backoff; a manual Reconnect cancels any pending retry.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arb-monitor/internal/config"
)

// State is the connection status reported to the dashboard.
type State int

const (
	Disconnected State = iota
	AwaitingConfig
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingConfig:
		return "awaiting_config"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := Disconnected; c <= Reconnecting; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown feed state %q", b)
}

// ErrAwaitingConfig is returned by Probe when there is no URL to test.
var ErrAwaitingConfig = errors.New("awaiting datasource configuration")

// Backoff returns the delay before retry number attempt (1-based):
// min(max, 2^(attempt-1) * base).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Target is a resolved endpoint.
type Target struct {
	URL       string
	Token     string
	Transport string // config.TransportWS or config.TransportSSE
}

// Resolver returns the endpoint to dial. ok is false while awaiting configuration.
// It is called before every attempt so settings changes take effect on reconnect.
type Resolver func() (t Target, ok bool)

// Stream is one open connection delivering raw frames.
type Stream interface {
	// Read blocks until the next frame arrives or the stream fails.
	Read() ([]byte, error)
	Close() error
}

// Transport opens streams.
type Transport interface {
	Dial(ctx context.Context, t Target) (Stream, error)
}

// Handler consumes frames. HandleFrame reports whether the frame was a heartbeat.
type Handler interface {
	HandleFrame(data []byte) (heartbeat bool)
}

// Options tunes the manager's timers.
type Options struct {
	HeartbeatTimeout time.Duration
	HeartbeatPoll    time.Duration
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	ReconnectDelay   time.Duration
	DialTimeout      time.Duration
}

// OptionsFrom maps the feed section of the config file.
func OptionsFrom(c config.FeedConfig) Options {
	return Options{
		HeartbeatTimeout: c.HeartbeatTimeout,
		HeartbeatPoll:    c.HeartbeatPoll,
		BaseBackoff:      c.BaseBackoff,
		MaxBackoff:       c.MaxBackoff,
		ReconnectDelay:   c.ReconnectDelay,
		DialTimeout:      c.DialTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 30 * time.Second
	}
	if o.HeartbeatPoll <= 0 {
		o.HeartbeatPoll = 5 * time.Second
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 120 * time.Millisecond
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	return o
}

// Manager keeps one feed connection alive.
type Manager struct {
	opts       Options
	resolve    Resolver
	transports map[string]Transport
	handler    Handler
	onStatus   func(State)
	logger     *slog.Logger
	now        func() time.Time

	kick chan struct{}

	mu       sync.Mutex
	state    State
	attempt  int
	lastBeat time.Time
	beatURL  string // endpoint that has heartbeated; arms the watchdog from open
	manual   bool
}

// NewManager wires a manager. transports is keyed by config.TransportWS / TransportSSE.
func NewManager(opts Options, resolve Resolver, transports map[string]Transport, handler Handler, logger *slog.Logger) *Manager {
	return &Manager{
		opts:       opts.withDefaults(),
		resolve:    resolve,
		transports: transports,
		handler:    handler,
		logger:     logger.With("component", "feed"),
		now:        time.Now,
		kick:       make(chan struct{}, 1),
	}
}

// OnStatus registers the status callback. Call before Run.
func (m *Manager) OnStatus(fn func(State)) {
	m.onStatus = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the number of consecutive failed attempts.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Reconnect drops the live connection or pending retry and dials again
// after the settle delay. It never blocks.
func (m *Manager) Reconnect() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run connects and reconnects until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	defer m.setState(Disconnected)

	for {
		if ctx.Err() != nil {
			return
		}

		target, ok := m.resolve()
		if !ok {
			m.setState(AwaitingConfig)
			m.logger.Info("awaiting datasource configuration")
			select {
			case <-ctx.Done():
				return
			case <-m.kick:
				if !m.settle(ctx) {
					return
				}
				continue
			}
		}

		m.setState(Connecting)
		err := m.session(ctx, target)
		if ctx.Err() != nil {
			return
		}

		if m.takeManual() {
			m.logger.Info("manual reconnect", "url", target.URL)
			m.resetAttempt()
			if !m.settle(ctx) {
				return
			}
			continue
		}

		attempt := m.nextAttempt()
		delay := Backoff(attempt, m.opts.BaseBackoff, m.opts.MaxBackoff)
		m.setState(Reconnecting)
		m.logger.Warn("feed disconnected, reconnecting",
			"error", err, "attempt", attempt, "delay", delay)

		retry := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			retry.Stop()
			return
		case <-retry.C:
		case <-m.kick:
			retry.Stop()
			m.resetAttempt()
			if !m.settle(ctx) {
				return
			}
		}
	}
}

// session dials once and reads until the stream ends.
func (m *Manager) session(ctx context.Context, target Target) error {
	tr, ok := m.transports[target.Transport]
	if !ok {
		return fmt.Errorf("unsupported transport %q", target.Transport)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	stream, err := tr.Dial(dialCtx, target)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.URL, err)
	}

	m.mu.Lock()
	m.attempt = 0
	if m.beatURL == target.URL {
		m.lastBeat = m.now()
	} else {
		m.lastBeat = time.Time{}
	}
	m.mu.Unlock()
	m.setState(Connected)
	m.logger.Info("feed connected", "url", target.URL, "transport", target.Transport)

	closer := &onceCloser{s: stream}
	defer closer.Close()

	watchCtx, stop := context.WithCancel(ctx)
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		m.watch(watchCtx, closer)
	}()
	defer func() {
		stop()
		<-watched
	}()

	for {
		data, err := stream.Read()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if m.handler.HandleFrame(data) {
			m.mu.Lock()
			m.lastBeat = m.now()
			m.beatURL = target.URL
			m.mu.Unlock()
		}
	}
}

// watch closes the stream on a stale heartbeat or a manual reconnect, and
// when the session ends. Closing unblocks the read loop. session waits for
// watch to return, so a kick it consumed is always visible to Run.
func (m *Manager) watch(ctx context.Context, s *onceCloser) {
	ticker := time.NewTicker(m.opts.HeartbeatPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-m.kick:
			m.mu.Lock()
			m.manual = true
			m.mu.Unlock()
			s.Close()
			return
		case <-ticker.C:
			if m.heartbeatStale() {
				m.logger.Warn("heartbeat timeout, closing feed", "timeout", m.opts.HeartbeatTimeout)
				s.Close()
				return
			}
		}
	}
}

// heartbeatStale is false until the endpoint has sent a heartbeat. After
// that, every session on the same endpoint is timed from the moment it opens.
func (m *Manager) heartbeatStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastBeat.IsZero() && m.now().Sub(m.lastBeat) > m.opts.HeartbeatTimeout
}

func (m *Manager) settle(ctx context.Context) bool {
	t := time.NewTimer(m.opts.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed && m.onStatus != nil {
		m.onStatus(s)
	}
}

func (m *Manager) nextAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	return m.attempt
}

func (m *Manager) resetAttempt() {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
}

func (m *Manager) takeManual() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.manual
	m.manual = false
	return v
}

type onceCloser struct {
	s    Stream
	once sync.Once
}

func (c *onceCloser) Close() {
	c.once.Do(func() { _ = c.s.Close() })
}
