package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

var leaveColumns = []string{"attempt_id", "student_id", "reason", "leave_seconds", "left_at"}

// LeaveQueue pushes leave events onto the Redis persistence queue.
type LeaveQueue struct {
	rdb *redis.Client
}

// NewLeaveQueue creates a new LeaveQueue.
func NewLeaveQueue(rdb *redis.Client) *LeaveQueue {
	return &LeaveQueue{rdb: rdb}
}

// Enqueue appends one event for LeaveWorker.
func (q *LeaveQueue) Enqueue(ctx context.Context, rec model.LeaveRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode leave: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistLeavesQueue, data).Err()
}

// LeaveWorker drains the leave queue into the attempt_leaves table in batches.
type LeaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewLeaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *LeaveWorker {
	return &LeaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "leave_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *LeaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LeaveWorker started")

	buffer := make([]*model.LeaveRecord, 0, BatchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop returns immediately when data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistLeavesQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var rec model.LeaveRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed leave event")
			continue
		}
		buffer = append(buffer, &rec)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues.
func (w *LeaveWorker) flushSafe(ctx context.Context, batch []*model.LeaveRecord) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Leave events persisted")
}

// leaveRow converts an event into attempt_leaves column values.
func leaveRow(rec *model.LeaveRecord) ([]interface{}, error) {
	attemptID, err := uuid.Parse(rec.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("attempt id %q: %w", rec.AttemptID, err)
	}
	if !rec.Reason.Valid() {
		return nil, fmt.Errorf("reason %q is not a leave reason", rec.Reason)
	}
	var leaveSeconds interface{}
	if rec.LeaveSeconds != nil {
		leaveSeconds = int32(*rec.LeaveSeconds)
	}
	return []interface{}{attemptID, rec.StudentID, string(rec.Reason), leaveSeconds, rec.Timestamp}, nil
}

func (w *LeaveWorker) bulkInsert(ctx context.Context, batch []*model.LeaveRecord) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, rec := range batch {
		row, err := leaveRow(rec)
		if err != nil {
			// The fallback drops the bad row individually.
			return err
		}
		rows = append(rows, row)
	}

	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"attempt_leaves"}, leaveColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *LeaveWorker) fallbackInsert(ctx context.Context, batch []*model.LeaveRecord) {
	var requeue []*model.LeaveRecord

	for _, rec := range batch {
		row, err := leaveRow(rec)
		if err != nil {
			w.log.Error().Err(err).Msg("Dropping invalid leave event")
			continue
		}
		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_leaves (attempt_id, student_id, reason, leave_seconds, left_at)
             VALUES ($1, $2, $3, $4, $5)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", rec.AttemptID).Msg("Insert failed, requeueing")
			requeue = append(requeue, rec)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *LeaveWorker) requeue(ctx context.Context, items []*model.LeaveRecord) {
	// Requeue must survive the shutdown flush's cancelled parent.
	ctx = context.WithoutCancel(ctx)
	pipe := w.rdb.Pipeline()
	for _, rec := range items {
		data, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.WorkerKey.PersistLeavesQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue leave events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed leave events")
	// Avoid thrashing while the database is down.
	sleep(ctx, 2*time.Second)
}

func (w *LeaveWorker) shutdown(buffer []*model.LeaveRecord) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
