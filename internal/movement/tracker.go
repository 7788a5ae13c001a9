package movement

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oddsview/oddsview/internal/odds"
)

// Direction is the sign of a price change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// DefaultTTL is how long a movement annotation stays visible after the
// change that produced it.
const DefaultTTL = 3 * time.Second

type entry struct {
	dir   Direction
	timer *time.Timer
	// gen invalidates an expiry that fired just as the window restarted
	// or the key was cleared and re-added. Drawn from the tracker-wide
	// counter so a recreated entry never reuses a retired value.
	gen uint64
}

// Tracker maintains a table of cell key → movement direction. Entries
// expire TTL after the most recent change to the cell; a new change on an
// already-flagged cell restarts its window. All methods are safe for
// concurrent use.
type Tracker struct {
	logger *slog.Logger
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	stopped bool

	onChange func()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides the annotation lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithOnChange registers a callback invoked whenever an annotation is set
// or expires. It may be called from a timer goroutine.
func WithOnChange(fn func()) Option {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

// New creates a Tracker with the default TTL.
func New(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:  logger,
		ttl:     DefaultTTL,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe compares a cell's current and previous odds. When both parse and
// differ, it flags the cell with the direction of the change and arms (or
// rearms) its expiry timer. Unparseable or unchanged prices leave any
// existing annotation alone.
func (t *Tracker) Observe(key string, current, previous *string) {
	if current == nil || previous == nil {
		return
	}
	cur, ok := odds.ParseAmerican(*current)
	if !ok {
		return
	}
	prev, ok := odds.ParseAmerican(*previous)
	if !ok {
		return
	}
	if cur == prev {
		return
	}

	dir := DirectionUp
	if cur < prev {
		dir = DirectionDown
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	if e, ok := t.entries[key]; ok {
		e.dir = dir
		e.gen = gen
		e.timer.Stop()
		e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, gen) })
	} else {
		e := &entry{dir: dir, gen: gen}
		e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, gen) })
		t.entries[key] = e
	}
	t.mu.Unlock()

	t.logger.Debug("odds moved", "key", key, "direction", string(dir))
	t.notify()
}

// Direction reports the active movement annotation for a cell, if any.
func (t *Tracker) Direction(key string) (Direction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return "", false
	}
	return e.dir, true
}

// Directions returns a copy of all active annotations.
func (t *Tracker) Directions() map[string]Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Direction, len(t.entries))
	for k, e := range t.entries {
		out[k] = e.dir
	}
	return out
}

// Clear drops all annotations without waiting for their timers. Used when
// the underlying odds state is replaced wholesale.
func (t *Tracker) Clear() {
	t.mu.Lock()
	changed := len(t.entries) > 0
	for _, e := range t.entries {
		e.timer.Stop()
	}
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// Stop clears all annotations and prevents any further ones. The tracker
// cannot be restarted.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	for _, e := range t.entries {
		e.timer.Stop()
	}
	t.entries = make(map[string]*entry)
	t.mu.Unlock()
}

func (t *Tracker) expire(key string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if ok && e.gen == gen {
		delete(t.entries, key)
	} else {
		ok = false
	}
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
