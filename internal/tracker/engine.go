// Package tracker implements click accounting and per-domain config
// operations on top of a storage.RecordStore.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/retry"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
)

// SourceInside is the click source that earns credit on a first visit.
const SourceInside = "inside"

const defaultStorageTimeout = 5 * time.Second

// DeviceClassifier maps a User-Agent to a domain.Device* value.
type DeviceClassifier interface {
	DeviceType(userAgent string) string
}

// Click is one click request.
type Click struct {
	Domain        string
	FirstVisit    bool
	Source        string
	RemoteAddress string
	UserAgent     string
	// Referrer is nil when the request carried none.
	Referrer *string
	IsBot    bool
}

// Credited reports whether the click earns money.
func (c Click) Credited() bool {
	return c.FirstVisit && c.Source == SourceInside
}

// Config holds engine settings.
type Config struct {
	Accounting domain.Accounting
	// Retry bounds store retries. IsRetryable and OnRetry are set by the engine.
	Retry retry.Config
	// StorageTimeout bounds each store attempt.
	StorageTimeout time.Duration
}

// Engine serves the config and click operations.
type Engine struct {
	records storage.RecordStore
	visits  storage.VisitRecorder
	devices DeviceClassifier
	cfg     Config
	log     infralogger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDeviceClassifier enables device classification of visit events.
func WithDeviceClassifier(c DeviceClassifier) Option {
	return func(e *Engine) { e.devices = c }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source for visit events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(
	records storage.RecordStore,
	visits storage.VisitRecorder,
	cfg Config,
	log infralogger.Logger,
	opts ...Option,
) *Engine {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = defaultStorageTimeout
	}
	e := &Engine{
		records: records,
		visits:  visits,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Accounting returns the crediting constants.
func (e *Engine) Accounting() domain.Accounting {
	return e.cfg.Accounting
}

// Get returns the record for name.
func (e *Engine) Get(ctx context.Context, name string) (*domain.DomainRecord, error) {
	var rec *domain.DomainRecord
	err := e.withRetry(ctx, "get", name, func(ctx context.Context) error {
		var getErr error
		rec, getErr = e.records.Get(ctx, name)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateOrMerge creates the record with default counters when absent and
// merges patch into its custom fields. Reserved keys in patch are ignored.
func (e *Engine) CreateOrMerge(ctx context.Context, name string, patch *domain.Fields) (*domain.DomainRecord, error) {
	var rec *domain.DomainRecord
	err := e.withRetry(ctx, "merge", name, func(ctx context.Context) error {
		var updateErr error
		rec, updateErr = e.records.Update(ctx, name, true, func(r *domain.DomainRecord) error {
			r.MergeCustom(patch)
			return nil
		})
		return updateErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MergeFragment parses body as a JSON object fragment and merges it. A
// malformed body returns domain.ErrMalformedPatch and changes nothing.
func (e *Engine) MergeFragment(ctx context.Context, name string, body []byte) (*domain.DomainRecord, error) {
	patch, err := codec.ParsePatch(body)
	if err != nil {
		return nil, err
	}
	return e.CreateOrMerge(ctx, name, patch)
}

// Delete removes the record. Deleting an absent record succeeds.
func (e *Engine) Delete(ctx context.Context, name string) error {
	return e.withRetry(ctx, "delete", name, func(ctx context.Context) error {
		return e.records.Delete(ctx, name)
	})
}

// AccountClick records a visit event and, for a credited click, adds one
// click and the click increment to the domain's counters. The returned
// fields reflect the state after the click.
func (e *Engine) AccountClick(ctx context.Context, click Click) (domain.Tracked, error) {
	start := time.Now()
	e.recordVisit(click)

	var (
		rec *domain.DomainRecord
		err error
	)
	if click.Credited() {
		err = e.withRetry(ctx, "credit", click.Domain, func(ctx context.Context) error {
			var creditErr error
			rec, creditErr = e.credit(ctx, click.Domain)
			return creditErr
		})
	} else {
		rec, err = e.Get(ctx, click.Domain)
	}

	e.metrics.RecordClick(clickOutcome(click, err), time.Since(start))
	if err != nil {
		return domain.Tracked{}, err
	}
	return rec.Tracked(e.cfg.Accounting), nil
}

// credit uses the store's atomic credit when it has one.
func (e *Engine) credit(ctx context.Context, name string) (*domain.DomainRecord, error) {
	inc := e.cfg.Accounting.ClickIncrement
	if c, ok := e.records.(storage.Crediter); ok {
		return c.Credit(ctx, name, inc)
	}
	return e.records.Update(ctx, name, false, func(r *domain.DomainRecord) error {
		r.Credit(inc)
		return nil
	})
}

func clickOutcome(click Click, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ClickNotFound
	case err != nil:
		return metrics.ClickError
	case click.Credited():
		return metrics.ClickCredited
	default:
		return metrics.ClickIgnored
	}
}

func (e *Engine) recordVisit(click Click) {
	if e.visits == nil {
		return
	}

	deviceType := domain.DeviceUnknown
	switch {
	case click.IsBot:
		deviceType = domain.DeviceBot
	case e.devices != nil:
		deviceType = e.devices.DeviceType(click.UserAgent)
	}

	e.visits.Record(domain.VisitEvent{
		ID:            uuid.New(),
		Domain:        click.Domain,
		RemoteAddress: click.RemoteAddress,
		UserAgent:     click.UserAgent,
		Referrer:      click.Referrer,
		DeviceType:    deviceType,
		IsBot:         click.IsBot,
		Timestamp:     e.now().UTC(),
	})
}

// withRetry runs fn with a per-attempt timeout, retrying transient store
// errors. Once attempts run out the last store error is returned wrapped.
func (e *Engine) withRetry(ctx context.Context, op, name string, fn func(ctx context.Context) error) error {
	log := infralogger.FromContext(ctx, e.log)

	cfg := e.cfg.Retry
	cfg.IsRetryable = domain.IsTransient
	cfg.OnRetry = func(attempt int, err error) {
		e.metrics.RecordRetry()
		log.Debug("Retrying store operation",
			infralogger.String("operation", op),
			infralogger.Domain(name),
			infralogger.Int("attempt", attempt),
			infralogger.Error(err),
		)
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
		defer cancel()
		return fn(attemptCtx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		e.metrics.RecordExhausted()
		log.Warn("Store operation failed after retries",
			infralogger.String("operation", op),
			infralogger.Domain(name),
			infralogger.Error(err),
		)
	}
	cancelled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if cancelled && !domain.IsTransient(err) && !errors.Is(err, domain.ErrOutcomeUnknown) {
		return fmt.Errorf("%s %s: %w: %w", op, name, domain.ErrUnavailable, err)
	}
	return err
}
