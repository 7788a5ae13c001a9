package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsview/oddsview/internal/metrics"
	"github.com/oddsview/oddsview/internal/odds"
)

// Config controls batching behavior.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// Tick is one odds cell observation to persist.
type Tick struct {
	Sport      string
	GameID     string
	Market     string
	Sportsbook string
	OutcomeKey string
	Outcome    odds.Outcome
	ReceivedAt time.Time
}

// tickRow is the flattened database row for a Tick.
type tickRow struct {
	Session     string
	ReceivedAt  int64
	Sport       string
	GameID      string
	Market      string
	Sportsbook  string
	OutcomeKey  string
	OutcomeName string
	Odds        *string
	Line        *string
	SourceTs    string
}

// Recorder consumes ticks and batch-inserts them into the odds_ticks table.
type Recorder struct {
	cfg     Config
	logger  *slog.Logger
	session uuid.UUID

	input chan Tick
	db    *pgxpool.Pool

	batch       []tickRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewRecorder creates a Recorder. Each recorder gets a fresh session id so
// rows from different runs are distinguishable.
func NewRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Recorder{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		session: uuid.New(),
		input:   make(chan Tick, 4*cfg.BatchSize),
		batch:   make([]tickRow, 0, cfg.BatchSize),
	}
}

// Session returns the recorder's session id.
func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// Start begins consuming ticks and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("history recorder started",
		"session", r.session,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping history recorder")

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("history recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("history recorder stop timed out")
	}

	// Final flush, on the caller's context: r.ctx is already cancelled.
	r.flush(ctx)

	return nil
}

// Record enqueues a tick. It never blocks the feed path: when the buffer
// is full the tick is dropped and counted.
func (r *Recorder) Record(t Tick) {
	select {
	case r.input <- t:
	default:
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
		r.logger.Warn("history buffer full, dropping tick",
			"game_id", t.GameID,
			"sportsbook", t.Sportsbook,
		)
	}
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case t := <-r.input:
			r.handleTick(t)
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *Recorder) handleTick(t Tick) {
	row := r.transform(t)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

func (r *Recorder) transform(t Tick) tickRow {
	return tickRow{
		Session:     r.session.String(),
		ReceivedAt:  t.ReceivedAt.UnixMicro(),
		Sport:       t.Sport,
		GameID:      t.GameID,
		Market:      t.Market,
		Sportsbook:  t.Sportsbook,
		OutcomeKey:  t.OutcomeKey,
		OutcomeName: t.Outcome.OutcomeName,
		Odds:        t.Outcome.Odds,
		Line:        t.Outcome.OutcomeLine,
		SourceTs:    t.Outcome.Timestamp,
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	batch := r.batch
	r.batch = make([]tickRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		metrics.HistoryErrors.Inc()
		return
	}

	metrics.HistoryInserts.Add(float64(len(batch) - conflicts))

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed odds ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO odds_ticks (session, received_at, sport, game_id, market, sportsbook, outcome_key, outcome_name, odds, line, source_ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (game_id, sportsbook, outcome_key, received_at) DO NOTHING
		`, row.Session, row.ReceivedAt, row.Sport, row.GameID, row.Market, row.Sportsbook, row.OutcomeKey, row.OutcomeName, row.Odds, row.Line, row.SourceTs)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
