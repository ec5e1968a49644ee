// Package sync keeps the active bloom filter consistent with the allowlist
// store: a bulk load at startup, incremental inserts in steady state, and
// periodic full rebuilds to bound staleness and absorb removals.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"allowgate/internal/gate/bloom"
	"allowgate/internal/gate/metrics"
	"allowgate/internal/gate/models"
	"allowgate/internal/gate/ports"
	"allowgate/internal/gate/rotation"
)

// Config carries the sync policy knobs. All values are externally owned;
// defaults live in platform config.
type Config struct {
	TargetFalsePositiveRate float64
	// ExpectedItemsFloor keeps rebuilt filters usefully sized even when the
	// table is near empty.
	ExpectedItemsFloor int
	// GrowthMargin scales the store row count when sizing a rebuild so
	// incremental inserts have headroom before the FP rate degrades.
	GrowthMargin float64
	// FalsePositiveCeiling schedules a rebuild once the active filter's
	// estimated FP rate crosses it.
	FalsePositiveCeiling float64
	RebuildInterval      time.Duration
	SyncInterval         time.Duration
	PageSize             int
	BackoffMin           time.Duration
	BackoffMax           time.Duration
}

// Manager is the single writer for bloom filters. It exclusively owns a
// filter while building it; readers only ever see filters published through
// the rotation controller.
type Manager struct {
	store    ports.AllowlistStore
	rotation *rotation.Controller
	cfg      Config

	notifier ports.ChangeNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// cursor is owned by the goroutine running InitialLoad/Run; it marks
	// how far incremental sync has scanned.
	cursor models.Cursor
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier subscribes the manager to allowlist change notifications so
// it reacts before the next poll tick.
func WithNotifier(notifier ports.ChangeNotifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// New constructs a sync manager.
func New(store ports.AllowlistStore, ctl *rotation.Controller, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("allowlist store is required")
	}
	if ctl == nil {
		return nil, fmt.Errorf("rotation controller is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive")
	}
	if cfg.GrowthMargin < 1 {
		return nil, fmt.Errorf("growth margin must be at least 1")
	}

	m := &Manager{
		store:    store,
		rotation: ctl,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// InitialLoad performs the startup bulk load, retrying with exponential
// backoff until it succeeds or ctx is cancelled. On success the freshly
// built filter becomes active.
func (m *Manager) InitialLoad(ctx context.Context) error {
	bo := m.newBackOff()
	return backoff.Retry(func() error {
		if err := m.rebuild(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			m.logger.Warn("initial bulk load failed, retrying", "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// Run executes the steady-state loop until ctx is cancelled: incremental
// sync on an interval (or sooner on change notification), full rebuilds on
// the staleness interval, on removals, and when the estimated false
// positive rate crosses the ceiling.
func (m *Manager) Run(ctx context.Context) error {
	var changes <-chan models.Change
	if m.notifier != nil {
		ch, err := m.notifier.Subscribe(ctx)
		if err != nil {
			// Notifications are an optimization; polling still converges.
			m.logger.Warn("change subscription unavailable, falling back to polling", "error", err)
		} else {
			changes = ch
		}
	}

	syncTicker := time.NewTicker(m.cfg.SyncInterval)
	defer syncTicker.Stop()
	rebuildTicker := time.NewTicker(m.cfg.RebuildInterval)
	defer rebuildTicker.Stop()

	bo := m.newBackOff()
	rebuildPending := false
	var retryAt <-chan time.Time

	scheduleRetry := func() {
		rebuildPending = true
		retryAt = time.After(bo.NextBackOff())
	}

	runRebuild := func() {
		if err := m.rebuild(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("filter rebuild failed, active filter unchanged", "error", err)
			scheduleRetry()
			return
		}
		bo.Reset()
		rebuildPending = false
		retryAt = nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-syncTicker.C:
			m.incrementalPass(ctx)

		case <-rebuildTicker.C:
			runRebuild()

		case <-retryAt:
			if rebuildPending {
				runRebuild()
			}

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			switch change.Kind {
			case models.ChangeRemoved:
				// Insert-only filters cannot drop bits; only a rebuild
				// clears the removed address's positions.
				runRebuild()
			default:
				m.incrementalPass(ctx)
			}
		}

		if !rebuildPending && m.falsePositiveRateExceeded() {
			m.logger.Info("estimated false positive rate over ceiling, rebuilding",
				"ceiling", m.cfg.FalsePositiveCeiling)
			runRebuild()
		}
	}
}

// incrementalPass fetches entries past the cursor and folds them into the
// active filter. Errors are logged and retried on the next tick; the active
// filter keeps serving either way.
func (m *Manager) incrementalPass(ctx context.Context) {
	active := m.rotation.Active()
	if active == nil {
		return
	}

	for {
		page, err := m.store.ScanSince(ctx, m.cursor, m.cfg.PageSize)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("incremental sync pass failed", "error", err)
				if m.metrics != nil {
					m.metrics.SyncErrorsTotal.Inc()
				}
			}
			return
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			active.Insert(entry.Address.String())
			m.cursor = models.CursorFor(entry)
		}
		if len(page) < m.cfg.PageSize {
			break
		}
	}

	m.publishFilterStats(active)
}

// rebuild runs one full bulk load off to the side and atomically activates
// the result. A failure discards the partially built filter and leaves the
// active one untouched.
func (m *Manager) rebuild(ctx context.Context) error {
	built, cursor, err := m.bulkLoad(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RebuildFailuresTotal.Inc()
		}
		return fmt.Errorf("rebuild: %w", err)
	}

	m.rotation.Activate(built)
	m.cursor = cursor
	if m.metrics != nil {
		m.metrics.RebuildsTotal.Inc()
	}
	m.publishFilterStats(built)
	m.logger.Info("activated rebuilt filter",
		"items", built.Items(),
		"bits", built.BitCount(),
		"hashes", built.HashCount())
	return nil
}

// bulkLoad scans the whole store in (created_at, id) order into a fresh
// filter sized from the current row count plus the growth margin. The
// building filter is exclusively owned here and invisible to readers;
// cancellation between pages discards it without side effects.
func (m *Manager) bulkLoad(ctx context.Context) (*bloom.Filter, models.Cursor, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, models.Cursor{}, fmt.Errorf("count allowlist: %w", err)
	}

	expected := int(float64(count) * m.cfg.GrowthMargin)
	if expected < m.cfg.ExpectedItemsFloor {
		expected = m.cfg.ExpectedItemsFloor
	}

	built, err := bloom.New(bloom.Params{
		ExpectedItems:           expected,
		TargetFalsePositiveRate: m.cfg.TargetFalsePositiveRate,
	})
	if err != nil {
		return nil, models.Cursor{}, err
	}

	var cursor models.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return nil, models.Cursor{}, err
		}
		page, err := m.store.ScanSince(ctx, cursor, m.cfg.PageSize)
		if err != nil {
			return nil, models.Cursor{}, fmt.Errorf("scan allowlist: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			built.Insert(entry.Address.String())
			cursor = models.CursorFor(entry)
		}
	}

	return built, cursor, nil
}

func (m *Manager) falsePositiveRateExceeded() bool {
	if m.cfg.FalsePositiveCeiling <= 0 {
		return false
	}
	active := m.rotation.Active()
	return active != nil && active.EstimatedFalsePositiveRate() > m.cfg.FalsePositiveCeiling
}

func (m *Manager) publishFilterStats(f *bloom.Filter) {
	if m.metrics == nil {
		return
	}
	m.metrics.FilterItems.Set(float64(f.Items()))
	m.metrics.FilterFalsePositiveRate.Set(f.EstimatedFalsePositiveRate())
}

// Cursor returns the incremental sync watermark.
func (m *Manager) Cursor() models.Cursor { return m.cursor }

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if m.cfg.BackoffMin > 0 {
		bo.InitialInterval = m.cfg.BackoffMin
	}
	if m.cfg.BackoffMax > 0 {
		bo.MaxInterval = m.cfg.BackoffMax
	}
	bo.MaxElapsedTime = 0
	return bo
}
