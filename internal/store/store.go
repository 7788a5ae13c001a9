package store

import (
	"log/slog"
	"sync"

	"github.com/oddsview/oddsview/internal/metrics"
	"github.com/oddsview/oddsview/internal/odds"
	"github.com/oddsview/oddsview/internal/protocol"
)

// Store owns the odds snapshot for the active subscription.
type Store struct {
	logger *slog.Logger

	mu   sync.RWMutex
	snap odds.Snapshot

	listenerMu sync.Mutex
	listeners  []func()
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// OnChange registers a listener invoked after every mutation. Listeners run
// synchronously on the mutating goroutine and must not call back into the
// store's mutation methods.
func (s *Store) OnChange(fn func()) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a deep copy of the current snapshot.
func (s *Store) Snapshot() odds.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// ApplySnapshot unconditionally replaces the entire snapshot with the
// message's fields and clears the loading flag. Applying the same snapshot
// twice yields the same state.
func (s *Store) ApplySnapshot(msg protocol.Snapshot) {
	s.mu.Lock()
	s.snap = odds.Snapshot{
		Sport:           msg.Sport,
		GameID:          msg.GameID,
		HomeTeam:        msg.HomeTeam,
		AwayTeam:        msg.AwayTeam,
		GameDescription: msg.GameDescription,
		Market:          msg.Market,
		Books:           msg.Odds.Clone(),
	}
	if s.snap.Books == nil {
		s.snap.Books = odds.Books{}
	}
	books := len(s.snap.Books)
	s.mu.Unlock()

	s.logger.Debug("snapshot applied",
		"game_id", msg.GameID,
		"market", msg.Market,
		"sportsbooks", books,
	)
	metrics.SnapshotsApplied.Inc()
	s.notify()
}

// ApplyUpdate replaces the entire outcome set of every sportsbook the
// update mentions. Outcomes with null odds are suspended and dropped; a
// sportsbook left with no outcomes is removed. Sportsbooks the update does
// not mention are untouched.
func (s *Store) ApplyUpdate(msg protocol.Update) {
	s.mu.Lock()
	if s.snap.Books == nil {
		s.snap.Books = odds.Books{}
	}

	for book, outcomes := range msg.Odds {
		set := make(map[string]odds.Outcome, len(outcomes))
		for key, o := range outcomes {
			if o.Odds == nil {
				continue
			}
			set[key] = o
		}
		if len(set) == 0 {
			delete(s.snap.Books, book)
		} else {
			s.snap.Books[book] = set
		}
	}
	s.mu.Unlock()

	metrics.UpdatesApplied.Inc()
	s.notify()
}

// Clear resets to the empty snapshot. Used when the selection becomes
// incomplete.
func (s *Store) Clear() {
	s.mu.Lock()
	s.snap = odds.Snapshot{}
	s.mu.Unlock()

	s.notify()
}

// SetLoading marks the snapshot as loading for a new tuple and drops all
// existing odds. Called right after issuing a subscribe, before the first
// snapshot arrives.
func (s *Store) SetLoading(sport, gameID, market string) {
	s.mu.Lock()
	s.snap = odds.Snapshot{
		Sport:   sport,
		GameID:  gameID,
		Market:  market,
		Books:   odds.Books{},
		Loading: true,
	}
	s.mu.Unlock()

	s.notify()
}

func (s *Store) notify() {
	s.listenerMu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
