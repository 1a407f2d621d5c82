package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
)

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 5 * time.Minute
	publishTimeout = 10 * time.Second
)

// parkedFor keeps dead-lettered events out of the pending scan; they stay
// undelivered and counted until an operator replays them.
const parkedFor = 100 * 365 * 24 * time.Hour

// Result summarises one relay pass.
type Result struct {
	Delivered int
	Failed    int
	Parked    int
}

// Relay moves committed outbox events to the publishers.
type Relay struct {
	store     repository.Store
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
	cfg       config.OutboxConfig

	cron      *cron.Cron
	mu        sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRelay wires a relay. Jobs are scheduled on Start.
func NewRelay(store repository.Store, publisher events.Publisher, clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics, cfg config.OutboxConfig) *Relay {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	cl := cronLogger{logger.Sugar()}
	return &Relay{
		store:     store,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the delivery and retention jobs. They run until ctx is done or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		if _, err = r.cron.AddFunc(r.cfg.Schedule, func() { r.flushJob(ctx) }); err != nil {
			err = fmt.Errorf("schedule outbox relay %q: %w", r.cfg.Schedule, err)
			return
		}
		if r.cfg.RetentionHours > 0 && r.cfg.PurgeSchedule != "" {
			if _, err = r.cron.AddFunc(r.cfg.PurgeSchedule, func() { r.purgeJob(ctx) }); err != nil {
				err = fmt.Errorf("schedule outbox purge %q: %w", r.cfg.PurgeSchedule, err)
				return
			}
		}
		r.cron.Start()
		r.logger.Info("outbox relay started",
			zap.String("schedule", r.cfg.Schedule),
			zap.String("purge_schedule", r.cfg.PurgeSchedule))
		go func() {
			<-ctx.Done()
			r.Stop()
		}()
	})
	return err
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		<-r.cron.Stop().Done()
		r.logger.Info("outbox relay stopped")
	})
}

func (r *Relay) flushJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Flush(ctx); err != nil {
		r.logger.Warn("outbox relay pass failed", zap.Error(err))
	}
}

func (r *Relay) purgeJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Purge(ctx); err != nil {
		r.logger.Warn("outbox purge failed", zap.Error(err))
	}
}

// Flush delivers one batch of due events. A publish failure only reschedules the
// event; the change that produced it is already committed.
func (r *Relay) Flush(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result Result
	now := r.clock.Now()
	pending, err := r.store.Repos().Outbox.ListPending(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list pending events: %w", err)
	}

	for i := range pending {
		record := &pending[i]
		deliverErr := r.deliver(ctx, record)
		if deliverErr == nil {
			if err := r.markDelivered(ctx, record.ID); err != nil {
				return result, err
			}
			result.Delivered++
			continue
		}

		attempts := record.Attempts + 1
		next := now.Add(retryDelay(attempts))
		if attempts >= r.cfg.MaxAttempts {
			next = now.Add(parkedFor)
			result.Parked++
			r.logger.Error("outbox event parked after max attempts",
				zap.String("event_id", record.ID),
				zap.String("event", record.Type),
				zap.String("tenant_id", record.TenantID),
				zap.Int("attempts", attempts),
				zap.Error(deliverErr))
		} else {
			r.logger.Warn("outbox delivery failed",
				zap.String("event_id", record.ID),
				zap.String("event", record.Type),
				zap.Int("attempts", attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(deliverErr))
		}
		if err := r.markFailed(ctx, record.ID, deliverErr.Error(), next); err != nil {
			return result, err
		}
		result.Failed++
	}

	pendingCount, err := r.store.Repos().Outbox.CountPending(ctx)
	if err != nil {
		return result, fmt.Errorf("count pending events: %w", err)
	}
	r.metrics.RecordOutbox(result.Delivered, result.Failed, pendingCount)
	if result.Delivered > 0 || result.Failed > 0 {
		r.logger.Debug("outbox relay pass",
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", result.Failed),
			zap.Int("pending", pendingCount))
	}
	return result, nil
}

// Purge removes delivered events older than the retention window.
func (r *Relay) Purge(ctx context.Context) (int, error) {
	if r.cfg.RetentionHours <= 0 {
		return 0, nil
	}
	before := r.clock.Now().Add(-r.cfg.Retention())
	var purged int
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		n, err := tx.Outbox.PurgeDelivered(ctx, before)
		purged = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge delivered events: %w", err)
	}
	r.metrics.RecordOutboxPurge(purged)
	if purged > 0 {
		r.logger.Info("outbox purged", zap.Int("purged", purged), zap.Time("before", before))
	}
	return purged, nil
}

func (r *Relay) deliver(ctx context.Context, record *domain.OutboxEvent) error {
	if r.publisher == nil {
		return errors.New("no publisher configured")
	}
	event, err := events.Decode(record.Payload)
	if err != nil {
		return fmt.Errorf("decode stored event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.publisher.Publish(ctx, event)
}

func (r *Relay) markDelivered(ctx context.Context, id string) error {
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return tx.Outbox.MarkDelivered(ctx, id, r.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("mark event %s delivered: %w", id, err)
	}
	return nil
}

func (r *Relay) markFailed(ctx context.Context, id, lastError string, next time.Time) error {
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return tx.Outbox.MarkFailed(ctx, id, lastError, next)
	})
	if err != nil {
		return fmt.Errorf("mark event %s failed: %w", id, err)
	}
	return nil
}

// retryDelay doubles from one second per attempt, capped at five minutes.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := baseRetryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
