package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oddsview/oddsview/internal/connection"
	"github.com/oddsview/oddsview/internal/history"
	"github.com/oddsview/oddsview/internal/movement"
	"github.com/oddsview/oddsview/internal/odds"
	"github.com/oddsview/oddsview/internal/protocol"
	"github.com/oddsview/oddsview/internal/store"
	"github.com/oddsview/oddsview/internal/view"
)

// Selection is the (sport, game, market) tuple the app is watching. It is
// complete when all three fields are set.
type Selection struct {
	Sport  string
	GameID string
	Market string
}

// Complete reports whether the selection names a subscribable tuple.
func (s Selection) Complete() bool {
	return s.Sport != "" && s.GameID != "" && s.Market != ""
}

// Options configures optional app collaborators and callbacks.
type Options struct {
	// Recorder persists applied odds cells. Nil disables history.
	Recorder *history.Recorder

	// OnRows is called after every change to the projected rows or the
	// movement annotations. Called from feed and timer goroutines.
	OnRows func()

	// OnStatus is called after every connection Info change.
	OnStatus func(connection.Info)

	// OnServerError receives error messages sent by the feed.
	OnServerError func(msg string)
}

// App is the application core.
type App struct {
	logger  *slog.Logger
	manager *connection.Manager
	store   *store.Store
	tracker *movement.Tracker
	opts    Options

	mu        sync.Mutex
	sel       Selection
	connState connection.State
}

// New assembles an App around a feed connection config.
func New(cfg connection.Config, logger *slog.Logger, opts Options) *App {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		logger:    logger,
		opts:      opts,
		connState: connection.StateDisconnected,
	}

	a.store = store.New(logger)
	a.store.OnChange(a.rowsChanged)

	a.tracker = movement.New(logger, movement.WithOnChange(a.rowsChanged))

	a.manager = connection.NewManager(cfg, connection.Handlers{
		OnState:   a.handleState,
		OnMessage: a.handleMessage,
	}, logger)

	return a
}

// Start opens the feed connection. The manager reconnects on its own until
// Stop is called.
func (a *App) Start(ctx context.Context) error {
	return a.manager.Connect(ctx)
}

// Stop tears the app down. The feed connection closes, movement timers are
// cancelled, and the history recorder (if any) gets a final flush.
func (a *App) Stop(ctx context.Context) error {
	err := a.manager.Disconnect()
	a.tracker.Stop()
	if a.opts.Recorder != nil {
		if rerr := a.opts.Recorder.Stop(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// SelectSport sets the sport and clears the game and market.
func (a *App) SelectSport(sport string) {
	a.mu.Lock()
	a.sel = Selection{Sport: sport}
	a.mu.Unlock()
	a.selectionChanged()
}

// SelectGame sets the game within the current sport and clears the market.
func (a *App) SelectGame(gameID string) {
	a.mu.Lock()
	a.sel.GameID = gameID
	a.sel.Market = ""
	a.mu.Unlock()
	a.selectionChanged()
}

// SelectMarket completes the selection.
func (a *App) SelectMarket(market string) {
	a.mu.Lock()
	a.sel.Market = market
	a.mu.Unlock()
	a.selectionChanged()
}

// Select sets the whole tuple at once.
func (a *App) Select(sel Selection) {
	a.mu.Lock()
	a.sel = sel
	a.mu.Unlock()
	a.selectionChanged()
}

// Selection returns the current tuple.
func (a *App) Selection() Selection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sel
}

// Rows returns the current projected display rows.
func (a *App) Rows() []view.Row {
	return view.Project(a.store.Snapshot())
}

// Movements returns the active movement annotations keyed by
// "sportsbook|outcome key".
func (a *App) Movements() map[string]movement.Direction {
	return a.tracker.Directions()
}

// Loading reports whether the app is waiting for the first snapshot of the
// current selection.
func (a *App) Loading() bool {
	return a.store.Snapshot().Loading
}

// ConnectionInfo returns the feed connection status.
func (a *App) ConnectionInfo() connection.Info {
	return a.manager.Info()
}

// selectionChanged applies the subscribe/unsubscribe consequence of a
// selection change.
func (a *App) selectionChanged() {
	sel := a.Selection()

	a.tracker.Clear()

	if !sel.Complete() {
		a.store.Clear()
		if err := a.manager.Unsubscribe(); err != nil {
			a.logger.Debug("unsubscribe skipped", "error", err)
		}
		return
	}

	a.subscribe(sel)
}

func (a *App) subscribe(sel Selection) {
	a.store.SetLoading(sel.Sport, sel.GameID, sel.Market)
	if err := a.manager.Subscribe(sel.Sport, sel.GameID, sel.Market); err != nil {
		// The re-subscribe on reconnect picks the selection up once the
		// transport is back.
		a.logger.Warn("subscribe deferred", "error", err,
			"sport", sel.Sport, "game_id", sel.GameID, "market", sel.Market)
	}
}

func (a *App) handleState(info connection.Info) {
	// Info callbacks also fire for pongs and status messages on a live
	// connection; only an actual transition into connected means the
	// server-side subscription was lost and needs re-issuing.
	a.mu.Lock()
	entered := info.State == connection.StateConnected && a.connState != connection.StateConnected
	a.connState = info.State
	sel := a.sel
	a.mu.Unlock()

	if entered && sel.Complete() {
		a.subscribe(sel)
	}

	if a.opts.OnStatus != nil {
		a.opts.OnStatus(info)
	}
}

func (a *App) handleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Snapshot:
		a.applySnapshot(m)
	case protocol.Update:
		a.applyUpdate(m)
	case protocol.ServerError:
		a.logger.Warn("feed error", "message", m.Message)
		if a.opts.OnServerError != nil {
			a.opts.OnServerError(m.Message)
		}
	}
}

func (a *App) applySnapshot(m protocol.Snapshot) {
	if !a.matches(m.GameID, m.Market) {
		a.logger.Debug("dropping snapshot for stale selection",
			"game_id", m.GameID, "market", m.Market)
		return
	}

	// A snapshot replaces the state wholesale, so movement baselines from
	// the previous state are meaningless.
	a.tracker.Clear()
	a.store.ApplySnapshot(m)
	a.record(m.Sport, m.GameID, m.Market, m.Odds)
}

func (a *App) applyUpdate(m protocol.Update) {
	if !a.matches(m.GameID, m.Market) {
		a.logger.Debug("dropping update for stale selection",
			"game_id", m.GameID, "market", m.Market)
		return
	}

	for book, outcomes := range m.Odds {
		for key, o := range outcomes {
			a.tracker.Observe(book+"|"+key, o.Odds, o.PreviousOdds)
		}
	}

	a.store.ApplyUpdate(m)
	a.record(m.Sport, m.GameID, m.Market, m.Odds)
}

func (a *App) matches(gameID, market string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sel.Complete() && a.sel.GameID == gameID && a.sel.Market == market
}

func (a *App) record(sport, gameID, market string, books odds.Books) {
	if a.opts.Recorder == nil {
		return
	}
	now := time.Now()
	for book, outcomes := range books {
		for key, o := range outcomes {
			a.opts.Recorder.Record(history.Tick{
				Sport:      sport,
				GameID:     gameID,
				Market:     market,
				Sportsbook: book,
				OutcomeKey: key,
				Outcome:    o,
				ReceivedAt: now,
			})
		}
	}
}

func (a *App) rowsChanged() {
	if a.opts.OnRows != nil {
		a.opts.OnRows()
	}
}
