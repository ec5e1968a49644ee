// Package service implements the verification gate: the fast approximate
// path through the bloom filter plus the authoritative confirmation path
// against the allowlist store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"allowgate/internal/gate/metrics"
	"allowgate/internal/gate/models"
	"allowgate/internal/gate/ports"
	"allowgate/internal/gate/rotation"
)

// defaultConfirmTimeout bounds the store confirmation step when no timeout
// is configured.
const defaultConfirmTimeout = 2 * time.Second

// breakerCooldown is how long an open circuit waits before letting a probe
// through to the store.
const breakerCooldown = 10 * time.Second

// Service answers eligibility checks and owns the administrative mutations
// that feed the sync pipeline.
type Service struct {
	store    ports.AllowlistStore
	rotation *rotation.Controller

	notifier       ports.ChangeNotifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	confirmTimeout time.Duration
	breaker        *breaker
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier publishes allowlist mutations so sync loops react promptly.
func WithNotifier(notifier ports.ChangeNotifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = mx
	}
}

// WithConfirmTimeout bounds the store confirmation call per check.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.confirmTimeout = timeout
		}
	}
}

// New constructs the verification gate service.
func New(store ports.AllowlistStore, ctl *rotation.Controller, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("allowlist store is required")
	}
	if ctl == nil {
		return nil, fmt.Errorf("rotation controller is required")
	}

	s := &Service{
		store:          store,
		rotation:       ctl,
		logger:         slog.Default(),
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = newBreaker(breakerCooldown)
	return s, nil
}

// Check resolves one eligibility query. Addresses the filter rules out are
// denied without touching the store; possible positives are confirmed
// against it. Any uncertainty (store outage, timeout, gate not yet loaded)
// resolves to a denial, never a grant.
func (s *Service) Check(ctx context.Context, rawAddress string) (models.Verdict, error) {
	address, err := models.NormalizeAddress(rawAddress)
	if err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.ChecksTotal.Inc()
	}

	filter := s.rotation.Active()
	if filter == nil {
		s.logger.Warn("check before initial filter load, failing closed")
		return models.VerdictDenied, nil
	}

	if !filter.Test(address.String()) {
		if s.metrics != nil {
			s.metrics.FastPathDenialsTotal.Inc()
		}
		return models.VerdictDenied, nil
	}

	if s.metrics != nil {
		s.metrics.EscalationsTotal.Inc()
	}

	if !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.StoreFailuresTotal.Inc()
		}
		return models.VerdictDenied, nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	start := time.Now()
	exists, err := s.store.Exists(confirmCtx, address)
	if s.metrics != nil {
		s.metrics.ConfirmDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.breaker.RecordFailure()
		if s.metrics != nil {
			s.metrics.StoreFailuresTotal.Inc()
		}
		s.logger.Warn("store confirmation failed, failing closed",
			"address", address.String(), "error", err)
		return models.VerdictDenied, nil
	}
	s.breaker.RecordSuccess()

	if !exists {
		// The filter said possibly present but the store disagrees: either
		// a genuine false positive or an address removed since the last
		// rebuild. Both correctly resolve to a denial.
		if s.metrics != nil {
			s.metrics.ConfirmedFalsePositives.Inc()
		}
		return models.VerdictDenied, nil
	}

	return models.VerdictAllowed, nil
}

// AddAddress inserts an address into the durable store, folds it into the
// active filter so the local gate allows it immediately, and notifies sync
// loops in other processes.
func (s *Service) AddAddress(ctx context.Context, rawAddress string) (models.AllowlistEntry, error) {
	address, err := models.NormalizeAddress(rawAddress)
	if err != nil {
		return models.AllowlistEntry{}, err
	}

	entry, err := s.store.InsertAddress(ctx, address)
	if err != nil {
		return models.AllowlistEntry{}, err
	}

	if filter := s.rotation.Active(); filter != nil {
		filter.Insert(address.String())
	}
	s.publishChange(ctx, models.Change{Kind: models.ChangeAdded, Address: address})

	return entry, nil
}

// RemoveAddress deletes an address from the durable store. The filter keeps
// its bits until the next rebuild; the confirmation path denies the address
// in the meantime.
func (s *Service) RemoveAddress(ctx context.Context, rawAddress string) error {
	address, err := models.NormalizeAddress(rawAddress)
	if err != nil {
		return err
	}

	if err := s.store.RemoveAddress(ctx, address); err != nil {
		return err
	}
	s.publishChange(ctx, models.Change{Kind: models.ChangeRemoved, Address: address})
	return nil
}

func (s *Service) publishChange(ctx context.Context, change models.Change) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, change); err != nil {
		// Best effort: polling picks the change up on the next tick.
		s.logger.Warn("failed to publish allowlist change", "error", err)
	}
}

// Stats describes the active filter for the stats endpoint and dashboards.
type Stats struct {
	Items                      uint64    `json:"items"`
	BitCount                   uint64    `json:"bit_count"`
	HashCount                  uint32    `json:"hash_count"`
	EstimatedFalsePositiveRate float64   `json:"estimated_false_positive_rate"`
	BuiltAt                    time.Time `json:"built_at"`
}

// Stats reports the active filter's shape, or ok=false before the initial
// load completes.
func (s *Service) Stats() (Stats, bool) {
	filter := s.rotation.Active()
	if filter == nil {
		return Stats{}, false
	}
	return Stats{
		Items:                      filter.Items(),
		BitCount:                   filter.BitCount(),
		HashCount:                  filter.HashCount(),
		EstimatedFalsePositiveRate: filter.EstimatedFalsePositiveRate(),
		BuiltAt:                    filter.BuiltAt(),
	}, true
}
