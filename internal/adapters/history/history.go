// Package history keeps a write-only SQLite record of game events and
// celebration dispatches.
//
// Writes are queued and applied by a single lane so callers never wait on
// disk. When the queue is full the write is dropped and counted.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/okian/stadium/internal/adapters/mq/queue"
	"github.com/okian/stadium/internal/adapters/mq/worker"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Table names.
const (
	TableCelebrations = "celebrations"
	TableOutcomes     = "dispatch_outcomes"
	TableEvents       = "game_events"
)

//go:embed schema.sql
var schema string

type write struct {
	table   string
	apply   func(ctx context.Context, tx *sql.Tx) error
	barrier chan struct{}
}

// Recorder is the history sink.
type Recorder struct {
	db     *sql.DB
	queue  *queue.InMemoryQueue[write]
	lane   *worker.Lane[write]
	clock  clockwork.Clock
	logger logger.Logger

	startOnce sync.Once
	closeOnce sync.Once
}

// pragmas are applied by the modernc driver on every new connection.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// Open opens (or creates) the database at path and applies the schema.
// Call Start to begin applying writes.
func Open(path string, opts ...Option) (*Recorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	o := options{queueSize: defaultQueueSize, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("history")
	}

	dsn := filepath.Clean(path) + "?" + pragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	r := &Recorder{
		db:     db,
		queue:  queue.NewInMemoryQueue[write](queue.WithCapacity(o.queueSize), queue.WithName("history")),
		clock:  o.clock,
		logger: o.logger,
	}
	r.lane = worker.NewLane[write](r.queue, r.apply, worker.WithName("history"), worker.WithLogger(o.logger))
	if mode, err := r.JournalMode(context.Background()); err == nil {
		o.logger.Debug(context.Background(), "history opened", logger.String("path", path), logger.String("journal_mode", mode))
	}
	return r, nil
}

// Start runs the write lane until Close.
func (r *Recorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.lane.Run(context.WithoutCancel(ctx))
	})
}

// Close stops accepting writes, drains the queue and closes the database.
func (r *Recorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		_ = r.queue.Close()
		r.startOnce.Do(func() {
			go r.lane.Run(context.Background())
		})
		select {
		case <-r.lane.Done():
		case <-ctx.Done():
			err = fmt.Errorf("drain history: %w", ctx.Err())
		}
		if cerr := r.db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close sqlite db: %w", cerr))
		}
	})
	return err
}

// Pending is the number of queued writes.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// RecordEvent queues a game event row.
func (r *Recorder) RecordEvent(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	at := r.clock.Now().UTC().UnixMilli()
	return r.enqueue(ctx, write{table: TableEvents, apply: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO game_events (contest_id, kind, event_key, payload, created_at)
VALUES (?, ?, ?, ?, ?)`,
			e.Contest(), e.Kind().String(), e.Key(), string(payload), at)
		return err
	}})
}

// RecordDispatch queues a celebration row with one outcome row per sink.
func (r *Recorder) RecordDispatch(ctx context.Context, res dispatch.Result) error {
	cmd := res.Command
	at := r.clock.Now().UTC().UnixMilli()
	outcomes := append([]dispatch.Outcome(nil), res.Outcomes...)
	return r.enqueue(ctx, write{table: TableCelebrations, apply: func(ctx context.Context, tx *sql.Tx) error {
		row, err := tx.ExecContext(ctx, `
INSERT INTO celebrations (
	contest_id, league, category, team_id, team_abbr, intensity, origin,
	manual, suppressed, idle, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cmd.ContestID, cmd.League, string(cmd.Category), cmd.Team.ID, cmd.Team.Abbreviation,
			cmd.Intensity.String(), cmd.Origin, boolInt(cmd.Manual), boolInt(res.Suppressed),
			boolInt(res.Idle), cmd.Duration.Milliseconds(), at)
		if err != nil {
			return err
		}
		id, err := row.LastInsertId()
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO dispatch_outcomes (celebration_id, sink_id, ok, latency_ms, error)
VALUES (?, ?, ?, ?, ?)`,
				id, o.SinkID, boolInt(o.OK), o.Latency.Milliseconds(), o.Error); err != nil {
				return err
			}
		}
		return nil
	}})
}

// Flush waits until every write queued before the call has been applied.
func (r *Recorder) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := r.queue.Enqueue(ctx, write{barrier: barrier}); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("flush history: %w", err)
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush history: %w", ctx.Err())
	}
}

// Count returns the number of rows in one of the history tables.
func (r *Recorder) Count(ctx context.Context, table string) (int64, error) {
	switch table {
	case TableCelebrations, TableOutcomes, TableEvents:
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// JournalMode reports the database's journal mode.
func (r *Recorder) JournalMode(ctx context.Context) (string, error) {
	var mode string
	if err := r.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("read journal mode: %w", err)
	}
	return mode, nil
}

func (r *Recorder) enqueue(ctx context.Context, w write) error {
	err := r.queue.Enqueue(ctx, w)
	switch {
	case err == nil:
		metrics.UpdateQueueSize("history", r.queue.Len())
		return nil
	case errors.Is(err, queue.ErrFull):
		metrics.RecordHistoryWrite(w.table, "dropped")
		r.logger.Warn(ctx, "history queue full, dropping write", logger.String("table", w.table))
		return fmt.Errorf("%w: %s", ErrDropped, w.table)
	case errors.Is(err, queue.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}

func (r *Recorder) apply(ctx context.Context, w write) {
	metrics.UpdateQueueSize("history", r.queue.Len())
	if w.barrier != nil {
		close(w.barrier)
		return
	}
	err := r.inTx(ctx, w.apply)
	if err != nil {
		metrics.RecordHistoryWrite(w.table, "error")
		r.logger.Error(ctx, "history write failed", logger.String("table", w.table), logger.Error(err))
		return
	}
	metrics.RecordHistoryWrite(w.table, "ok")
}

func (r *Recorder) inTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
