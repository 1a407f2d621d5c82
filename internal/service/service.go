package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/sequence"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Dependencies bundles what every service needs.
type Dependencies struct {
	Store           repository.Store
	Sequencer       sequence.Allocator
	Clock           clock.Clock
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	Retry           config.RetryConfig
	Estimator       config.EstimatorConfig
	StorageTimeout  time.Duration
	DefaultLocation *time.Location
}

// core holds the unit-of-work plumbing shared by the services.
type core struct {
	store          repository.Store
	sequencer      sequence.Allocator
	clock          clock.Clock
	logger         *zap.Logger
	metrics        *observability.Metrics
	retry          config.RetryConfig
	estimator      config.EstimatorConfig
	storageTimeout time.Duration
	location       *time.Location
}

func newCore(deps Dependencies) *core {
	c := &core{
		store:          deps.Store,
		sequencer:      deps.Sequencer,
		clock:          deps.Clock,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		retry:          deps.Retry,
		estimator:      deps.Estimator,
		storageTimeout: deps.StorageTimeout,
		location:       deps.DefaultLocation,
	}
	if c.sequencer == nil {
		c.sequencer = sequence.NewStoreAllocator()
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if c.location == nil {
		c.location = time.UTC
	}
	if c.estimator.SampleSize <= 0 {
		c.estimator.SampleSize = 20
	}
	if c.estimator.LookbackDays <= 0 {
		c.estimator.LookbackDays = 30
	}
	return c
}

// scope is the state of one attempt of a unit of work.
type scope struct {
	repository.Repositories
	actor   domain.Actor
	now     time.Time
	emitted []events.Event
}

// emit writes the event to the outbox of the current unit of work.
func (s *scope) emit(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := s.Outbox.Append(ctx, &domain.OutboxEvent{
		ID:            event.ID,
		TenantID:      event.TenantID,
		Type:          string(event.Type),
		Payload:       payload,
		CreatedAt:     s.now,
		NextAttemptAt: s.now,
	}); err != nil {
		return err
	}
	s.emitted = append(s.emitted, event)
	return nil
}

func (s *scope) record(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return s.History.Create(ctx, entry)
}

func (s *scope) statusChange(ctx context.Context, entity domain.EntityType, id, from, to string, extra map[string]any) error {
	return s.record(ctx, domain.StatusChange(s.actor.TenantID, entity, id, s.actor, from, to, s.now, extra))
}

func (s *scope) created(ctx context.Context, entity domain.EntityType, id string, value map[string]any) error {
	return s.record(ctx, &domain.HistoryEntry{
		TenantID:   s.actor.TenantID,
		EntityType: entity,
		EntityID:   id,
		ActorID:    s.actor.ID(),
		ChangeType: domain.ChangeTypeCreated,
		NewValue:   value,
		CreatedAt:  s.now,
	})
}

func requireTenant(actor domain.Actor) error {
	if strings.TrimSpace(actor.TenantID) == "" {
		return apperrors.NewUnauthorized("tenant required")
	}
	return nil
}

// run executes fn as one unit of work, retrying storage conflicts with
// exponential backoff and jitter. Business errors are returned as is.
func (c *core) run(ctx context.Context, operation string, actor domain.Actor, fn func(context.Context, *scope) error) error {
	if err := requireTenant(actor); err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		var committed *scope
		err := c.withTimeout(ctx, func(ctx context.Context) error {
			return c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
				sc := &scope{Repositories: tx, actor: actor, now: c.clock.Now()}
				if err := fn(ctx, sc); err != nil {
					return err
				}
				committed = sc
				return nil
			})
		})
		if err == nil {
			c.afterCommit(operation, committed)
			return nil
		}
		if !isRetryable(err) {
			return c.mapError(err)
		}
		lastErr = err
		if attempt == c.retry.MaxAttempts {
			break
		}
		c.metrics.RecordRetry(operation)
		c.logger.Debug("retrying unit of work",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if err := sleep(ctx, c.backoff(attempt)); err != nil {
			return apperrors.NewUnavailable(err)
		}
	}
	c.logger.Warn("unit of work conflicted on every attempt",
		zap.String("operation", operation),
		zap.String("tenant_id", actor.TenantID),
		zap.Int("attempts", c.retry.MaxAttempts),
		zap.Error(lastErr))
	return apperrors.NewConcurrencyConflict("concurrent modification, retry later", map[string]any{
		"operation": operation,
		"attempts":  c.retry.MaxAttempts,
	})
}

// read runs fn against committed state under the storage timeout.
func (c *core) read(ctx context.Context, actor domain.Actor, fn func(context.Context, repository.Repositories) error) error {
	if err := requireTenant(actor); err != nil {
		return err
	}
	err := c.withTimeout(ctx, func(ctx context.Context) error {
		return fn(ctx, c.store.Repos())
	})
	if err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *core) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if c.storageTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	defer cancel()
	return fn(ctx)
}

func (c *core) afterCommit(operation string, sc *scope) {
	if sc == nil {
		return
	}
	for _, event := range sc.emitted {
		entity, _, _ := strings.Cut(string(event.Type), ".")
		c.metrics.RecordTransition(entity, string(event.Type))
		c.logger.Debug("transition committed",
			zap.String("operation", operation),
			zap.String("event", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.String("tenant_id", event.TenantID))
	}
}

func (c *core) backoff(attempt int) time.Duration {
	base := c.retry.BaseDelay()
	if base <= 0 {
		return 0
	}
	delay := base << (attempt - 1)
	return delay/2 + time.Duration(rand.Int63n(int64(delay/2+1)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrDuplicate)
}

func (c *core) mapError(err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConcurrencyConflict("concurrent modification, retry later", nil)
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperrors.NewUnavailable(err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrCrossTenant):
		return apperrors.NewNotFound("resource", nil)
	}
	c.logger.Error("unexpected storage error", zap.Error(err))
	return apperrors.NewInternalError(err)
}

// lookupErr converts a repository lookup failure. Entities of other tenants are
// reported as missing and logged as a security event.
func (c *core) lookupErr(actor domain.Actor, entity, id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrCrossTenant):
		c.logger.Warn("cross-tenant access denied",
			zap.String("security_event", "cross_tenant_access"),
			zap.String("tenant_id", actor.TenantID),
			zap.String("actor_id", actor.ID()),
			zap.String("entity", entity),
			zap.String("entity_id", id))
		return apperrors.NewNotFound(entity, map[string]any{"id": id})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(entity, map[string]any{"id": id})
	}
	return err
}

// decodeSettings parses the service settings document, falling back to defaults.
func (c *core) decodeSettings(svc *domain.Service) domain.ServiceSettings {
	settings, err := svc.ParseSettings()
	if err != nil {
		c.logger.Debug("service settings unreadable, using defaults",
			zap.String("service_id", svc.ID),
			zap.Error(err))
	}
	return settings
}
