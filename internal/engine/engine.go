// Package engine is the application-state controller of the monitor.
//
// It owns everything that changes while the monitor runs:
//
//  1. The feed Manager delivers raw frames; HandleFrame normalizes them.
//  2. Snapshots replace the market board and rebuild the arbitrage table.
//  3. Updates merge into the board, are priced by the arbitrage calculator,
//     and upsert or remove their table row.
//  4. Alert-eligible rows pass the dedup memory before the dispatcher fans
//     them out to the dashboard and system notifications.
//  5. Books first seen on the feed are enabled and persisted.
//
// All of this state sits behind one mutex, so the dashboard observes either
// the board before a snapshot or after it, never the cleared intermediate.
// Side effects (events, persistence, dedup I/O, alerts) run after the lock
// is released, in the order they were produced.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"arb-monitor/internal/alert"
	"arb-monitor/internal/api"
	"arb-monitor/internal/arbitrage"
	"arb-monitor/internal/config"
	"arb-monitor/internal/feed"
	"arb-monitor/internal/market"
	"arb-monitor/internal/normalize"
	"arb-monitor/internal/store"
	"arb-monitor/pkg/types"
)

// ErrInvalidSettings wraps validation failures from UpdateSettings.
var ErrInvalidSettings = fmt.Errorf("invalid settings: %w", api.ErrBadSettings)

const eventBufferSize = 256

// Deps are the I/O-bound collaborators built by the caller.
type Deps struct {
	Store      *store.Store              // nil disables persistence
	Memory     alert.Memory              // nil uses an in-process memory
	Notifier   alert.Notifier            // nil logs system notifications
	Transports map[string]feed.Transport // nil uses WebSocket and SSE
}

// tableRow is one live row of the arbitrage table.
type tableRow struct {
	api.ArbRow
	hide    *time.Timer
	hideGen int
}

// Engine owns the board, the arbitrage table and the feed connection.
type Engine struct {
	cfg        config.Config
	normalizer *normalize.Normalizer
	board      *market.Board
	memory     alert.Memory
	dispatcher *alert.Dispatcher
	manager    *feed.Manager
	transports map[string]feed.Transport
	store      *store.Store
	logger     *slog.Logger

	// mu guards settings, rows and discovered.
	mu         sync.Mutex
	settings   config.Settings
	rows       map[string]*tableRow // RowKey -> row
	discovered map[string]struct{}

	dashboardEvents chan api.DashboardEvent

	now      func() time.Time
	hideUnit time.Duration // unit of notify.autoHideRowS

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the engine. Saved settings, when present, overlay cfg.Settings.
func New(cfg config.Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	settings := cfg.Settings.Clone()
	if deps.Store != nil {
		loaded, found, err := deps.Store.LoadSettings(settings)
		switch {
		case err != nil:
			logger.Warn("ignoring unreadable saved settings", "error", err)
		case found:
			settings = loaded
			logger.Info("restored saved settings", "key", store.SettingsKey)
		}
	}
	ensureABook(&settings)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	memory := deps.Memory
	if memory == nil {
		memory = alert.NewInMemory(cfg.Alerts.DedupWindow)
	}
	transports := deps.Transports
	if transports == nil {
		transports = map[string]feed.Transport{
			config.TransportWS:  feed.NewWebSocketTransport(),
			config.TransportSSE: feed.NewSSETransport(),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:             cfg,
		normalizer:      normalize.New(cfg.Feed.CompanyBooks, logger),
		board:           market.NewBoard(),
		memory:          memory,
		transports:      transports,
		store:           deps.Store,
		logger:          logger.With("component", "engine"),
		settings:        settings,
		rows:            make(map[string]*tableRow),
		discovered:      make(map[string]struct{}),
		dashboardEvents: make(chan api.DashboardEvent, eventBufferSize),
		now:             time.Now,
		hideUnit:        time.Second,
		ctx:             ctx,
		cancel:          cancel,
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = alert.LogNotifier{Logger: logger}
	}
	e.dispatcher = alert.NewDispatcher(e, notifier, alert.NewPerMinute(cfg.Alerts.NotifyPerMinute), logger)

	e.manager = feed.NewManager(feed.OptionsFrom(cfg.Feed), e.resolve, transports, e, logger)
	e.manager.OnStatus(func(feed.State) {
		e.emit(api.NewEvent(api.EventStatus, e.Status()))
	})
	return e, nil
}

// Start launches the feed connection.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.manager.Run(e.ctx)
	}()
	return nil
}

// Stop tears down the feed connection and pending timers.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	for _, row := range e.rows {
		if row.hide != nil {
			row.hide.Stop()
		}
	}
	e.mu.Unlock()

	if e.store != nil {
		e.store.Close()
	}
	e.logger.Info("shutdown complete")
}

// effects collects what a locked section decided to do once unlocked.
type effects struct {
	persist *config.Settings
	events  []api.DashboardEvent
	forget  []string
	alerts  []types.ArbitrageResult
}

func (e *Engine) flush(fx *effects) {
	if fx.persist != nil {
		e.persist(*fx.persist)
	}
	for _, evt := range fx.events {
		e.emit(evt)
	}
	for _, sig := range fx.forget {
		if err := e.memory.Forget(e.ctx, sig); err != nil {
			e.logger.Warn("failed to forget alert record", "signature", sig, "error", err)
		}
	}
	for _, res := range fx.alerts {
		e.alert(res)
	}
}

// HandleFrame processes one raw feed frame. It reports whether the frame was
// a heartbeat. Malformed frames are logged and dropped.
func (e *Engine) HandleFrame(data []byte) bool {
	msg, err := e.normalizer.Decode(data)
	if err != nil {
		e.logger.Debug("dropping malformed frame", "error", err, "bytes", len(data))
		return false
	}
	if msg == nil {
		return false
	}

	switch msg.Kind {
	case types.KindHeartbeat:
		e.emit(api.NewEvent(api.EventHeartbeat, msg.Timestamp))
		return true
	case types.KindSnapshot:
		e.applySnapshot(msg.Opportunities)
	case types.KindOpportunity:
		e.applyUpdate(*msg.Opportunity)
	}
	return false
}

// applySnapshot replaces the board and rebuilds the table without alerting.
func (e *Engine) applySnapshot(opps []types.Opportunity) {
	fx := &effects{}

	e.mu.Lock()
	e.clearTableLocked()
	e.discovered = make(map[string]struct{})
	changed := false
	for _, opp := range opps {
		if e.discoverLocked(opp) {
			changed = true
		}
	}
	if changed {
		s := e.settings.Clone()
		fx.persist = &s
	}
	e.board.Replace(opps)
	for _, opp := range opps {
		if res, ok := arbitrage.Calculate(opp, e.settings); ok {
			e.upsertRowLocked(res, fx, false)
		}
	}
	e.mu.Unlock()

	e.logger.Info("snapshot applied", "opportunities", len(opps), "events", e.board.Len())
	fx.events = nil
	e.flush(fx)
	e.emit(api.NewEvent(api.EventSnapshot, api.BuildSnapshot(e, market.SortByTime)))
}

// applyUpdate merges one opportunity and prices it.
func (e *Engine) applyUpdate(opp types.Opportunity) {
	fx := &effects{}

	e.mu.Lock()
	if e.discoverLocked(opp) {
		s := e.settings.Clone()
		fx.persist = &s
	}
	e.board.Upsert(opp)
	fx.events = append(fx.events, api.NewEvent(api.EventBoard, e.boardEventLocked(opp.EventID)))
	if res, ok := arbitrage.Calculate(opp, e.settings); ok {
		e.upsertRowLocked(res, fx, true)
	}
	e.mu.Unlock()

	e.flush(fx)
}

// upsertRowLocked applies the table rules: rows below minProfit are removed
// (and their alert record forgotten), others are inserted or updated in place.
func (e *Engine) upsertRowLocked(res types.ArbitrageResult, fx *effects, mayAlert bool) {
	row, exists := e.rows[res.RowKey]
	if res.Profit < e.settings.Stake.MinProfit {
		if exists {
			e.removeRowLocked(res.RowKey, "below_min_profit", fx)
		}
		return
	}

	if !exists {
		row = &tableRow{}
		e.rows[res.RowKey] = row
	}
	row.Result = res
	row.UpdatedAt = e.now()
	fx.events = append(fx.events, api.NewEvent(api.EventRowUpsert, row.ArbRow))

	if mayAlert && res.ShouldAlert {
		fx.alerts = append(fx.alerts, res)
	}
}

func (e *Engine) removeRowLocked(key, reason string, fx *effects) {
	row, ok := e.rows[key]
	if !ok {
		return
	}
	if row.hide != nil {
		row.hide.Stop()
	}
	delete(e.rows, key)
	fx.forget = append(fx.forget, row.Result.Signature)
	fx.events = append(fx.events, api.NewEvent(api.EventRowRemove, api.RowEvent{RowKey: key, Reason: reason}))
}

func (e *Engine) clearTableLocked() {
	for _, row := range e.rows {
		if row.hide != nil {
			row.hide.Stop()
		}
	}
	e.rows = make(map[string]*tableRow)
}

// alert runs the dedup gate and dispatches. A failing dedup backend lets the
// alert through.
func (e *Engine) alert(res types.ArbitrageResult) {
	emit, err := e.memory.ShouldEmit(e.ctx, res.Signature, res.Profit, e.now())
	if err != nil {
		e.logger.Warn("dedup check failed", "signature", res.Signature, "error", err)
		emit = true
	}
	if !emit {
		e.logger.Debug("alert suppressed by dedup", "signature", res.Signature, "profit", res.Profit)
		return
	}

	e.mu.Lock()
	notify := e.settings.Notify
	e.mu.Unlock()

	e.dispatcher.Dispatch(e.ctx, res, notify)
	e.markAlerted(res, notify.AutoHideRowS)
}

// markAlerted flags the row and arms its auto-hide timer.
func (e *Engine) markAlerted(res types.ArbitrageResult, autoHideS int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, ok := e.rows[res.RowKey]
	if !ok || row.Result.Signature != res.Signature {
		return
	}
	row.Alerted = true
	row.Hidden = false
	if row.hide != nil {
		row.hide.Stop()
		row.hide = nil
	}
	if autoHideS <= 0 {
		return
	}
	row.hideGen++
	gen, key := row.hideGen, res.RowKey
	row.hide = time.AfterFunc(time.Duration(autoHideS)*e.hideUnit, func() {
		e.hideRow(key, row, gen)
	})
}

func (e *Engine) hideRow(key string, row *tableRow, gen int) {
	e.mu.Lock()
	cur, ok := e.rows[key]
	if !ok || cur != row || row.hideGen != gen {
		e.mu.Unlock()
		return
	}
	row.Hidden = true
	row.hide = nil
	e.mu.Unlock()

	e.emit(api.NewEvent(api.EventRowHidden, api.RowEvent{RowKey: key, Reason: "auto_hide"}))
}

// discoverLocked records the books of opp. Books never configured before
// are enabled. It reports whether settings changed.
func (e *Engine) discoverLocked(opp types.Opportunity) bool {
	changed := false
	for _, raw := range []string{opp.PickA.Book, opp.PickB.Book} {
		b := config.NormBook(raw)
		if b == "" {
			continue
		}
		if _, seen := e.discovered[b]; seen {
			continue
		}
		e.discovered[b] = struct{}{}
		if _, known := e.settings.Books[b]; !known {
			e.settings.Books[b] = true
			changed = true
			e.logger.Info("new book discovered", "book", b)
		}
	}
	if changed {
		ensureABook(&e.settings)
	}
	return changed
}

// ensureABook re-points the stake A-book to the first enabled book when the
// current one is unset or switched off.
func ensureABook(s *config.Settings) {
	if s.Books == nil {
		s.Books = make(map[string]bool)
	}
	if s.Stake.ABook != "" {
		on, known := s.Books[s.Stake.ABook]
		if !known || on {
			return
		}
	}
	if enabled := s.EnabledBooks(); len(enabled) > 0 {
		s.Stake.ABook = enabled[0]
	}
}

func (e *Engine) boardEventLocked(eventID string) api.BoardEvent {
	evt := api.BoardEvent{EventID: eventID, Events: e.board.Len()}
	for _, r := range e.board.Rows(e.settings.BookEnabled, market.SortByTime) {
		if r.EventID == eventID {
			evt.Rows = append(evt.Rows, r)
		}
	}
	return evt
}

// persist saves settings and announces them.
func (e *Engine) persist(s config.Settings) {
	if e.store != nil {
		if err := e.store.SaveSettings(s); err != nil {
			e.logger.Error("failed to save settings", "error", err)
		}
	}
	e.emit(api.NewSettingsEvent(s))
}

// emit sends an event to the dashboard (non-blocking).
func (e *Engine) emit(evt api.DashboardEvent) {
	select {
	case e.dashboardEvents <- evt:
	default:
		// Dashboard can't keep up, drop event
	}
}

// PublishAlert makes the engine the dispatcher's toast and sound sink.
func (e *Engine) PublishAlert(a alert.Alert) {
	e.emit(api.NewAlertEvent(a))
}

// resolve picks the feed endpoint for the current settings.
func (e *Engine) resolve() (feed.Target, bool) {
	e.mu.Lock()
	ds := e.settings.Datasource
	e.mu.Unlock()
	return e.target(ds)
}

func (e *Engine) target(ds config.DatasourceSettings) (feed.Target, bool) {
	url, ok := ds.Endpoint(e.cfg.Feed.DefaultURL, e.cfg.MockURL())
	if !ok {
		return feed.Target{}, false
	}
	t := feed.Target{URL: url, Transport: ds.Transport}
	if ds.UseMock {
		t.Transport = config.TransportWS
	} else {
		t.Token = ds.Token
	}
	if t.Transport == "" {
		t.Transport = config.TransportWS
	}
	return t, true
}

// ————————————————————————————————————————————————————————————————————————
// Dashboard surface (api.Provider)
// ————————————————————————————————————————————————————————————————————————

// Status reports the connection state.
func (e *Engine) Status() api.StatusEvent {
	st := api.StatusEvent{State: e.manager.State(), Attempt: e.manager.Attempt()}
	if t, ok := e.resolve(); ok {
		st.URL = t.URL
	}
	return st
}

// BoardRows renders the board for enabled books.
func (e *Engine) BoardRows(order market.SortOrder) []market.Row {
	e.mu.Lock()
	settings := e.settings.Clone()
	e.mu.Unlock()
	return e.board.Rows(settings.BookEnabled, order)
}

// Table returns the arbitrage rows, best profit first.
func (e *Engine) Table() []api.ArbRow {
	e.mu.Lock()
	out := make([]api.ArbRow, 0, len(e.rows))
	for _, row := range e.rows {
		out = append(out, row.ArbRow)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Result.Profit != out[j].Result.Profit {
			return out[i].Result.Profit > out[j].Result.Profit
		}
		return out[i].Result.RowKey < out[j].Result.RowKey
	})
	return out
}

// Books lists every configured or discovered book.
func (e *Engine) Books() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.settings.Books))
	for b := range e.settings.Books {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// UpdateSettings replaces the settings. A datasource change clears the board
// and table and reconnects; any other change re-prices the board.
func (e *Engine) UpdateSettings(ctx context.Context, next config.Settings) (config.Settings, error) {
	next = next.Clone()
	ensureABook(&next)
	if err := next.Validate(); err != nil {
		return e.Settings(), fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	e.mu.Lock()
	prev := e.settings
	e.settings = next.Clone()
	dsChanged := prev.Datasource != next.Datasource
	if dsChanged {
		e.board.Clear()
		e.clearTableLocked()
		e.discovered = make(map[string]struct{})
	}
	e.mu.Unlock()

	e.persist(next)
	if dsChanged {
		e.logger.Info("datasource changed, reconnecting",
			"mode", next.Datasource.Mode, "transport", next.Datasource.Transport, "mock", next.Datasource.UseMock)
		e.emit(api.NewEvent(api.EventTableClear, nil))
		e.emit(api.NewEvent(api.EventBoard, api.BoardEvent{Replaced: true}))
		e.manager.Reconnect()
	} else {
		e.Recalculate(ctx)
	}
	return next, nil
}

// Reconnect forces a fresh feed connection.
func (e *Engine) Reconnect() {
	e.manager.Reconnect()
}

// Recalculate rebuilds the table from the board. It never alerts.
func (e *Engine) Recalculate(_ context.Context) int {
	fx := &effects{}

	e.mu.Lock()
	e.clearTableLocked()
	for _, opp := range e.board.Opportunities() {
		if res, ok := arbitrage.Calculate(opp, e.settings); ok {
			e.upsertRowLocked(res, fx, false)
		}
	}
	n := len(e.rows)
	e.mu.Unlock()

	e.logger.Info("table recalculated", "rows", n)
	e.emit(api.NewEvent(api.EventSnapshot, api.BuildSnapshot(e, market.SortByTime)))
	return n
}

// ClearAlerts empties the table and the dedup memory.
func (e *Engine) ClearAlerts(ctx context.Context) error {
	e.mu.Lock()
	e.clearTableLocked()
	e.mu.Unlock()

	e.emit(api.NewEvent(api.EventTableClear, nil))
	if err := e.memory.Reset(ctx); err != nil {
		return fmt.Errorf("reset alert memory: %w", err)
	}
	return nil
}

// TestDatasource probes the endpoint ds would connect to.
func (e *Engine) TestDatasource(ctx context.Context, ds config.DatasourceSettings) (time.Duration, error) {
	t, ok := e.target(ds)
	if !ok {
		return 0, feed.ErrAwaitingConfig
	}
	tr, ok := e.transports[t.Transport]
	if !ok {
		return 0, fmt.Errorf("unsupported transport %q", t.Transport)
	}
	return feed.Probe(ctx, tr, t)
}

// DashboardEvents returns the dashboard event channel.
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardEvents
}
