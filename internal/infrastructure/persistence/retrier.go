package persistence

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RetryConfig holds the backoff settings for transient storage failures
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are configured
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// BackoffRetrier re-runs operations that failed with a serialization failure, deadlock
// or connection error. Any other error is returned immediately.
type BackoffRetrier struct {
	cfg     RetryConfig
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics
}

// RetrierOption configures a BackoffRetrier
type RetrierOption func(*BackoffRetrier)

// WithRetryMetrics counts every retry on the given ledger metrics
func WithRetryMetrics(m *telemetry.LedgerMetrics) RetrierOption {
	return func(r *BackoffRetrier) {
		r.metrics = m
	}
}

// NewBackoffRetrier creates a new BackoffRetrier
func NewBackoffRetrier(cfg RetryConfig, logger *zap.Logger, opts ...RetrierOption) *BackoffRetrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &BackoffRetrier{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op until it succeeds, fails permanently, or the attempts are exhausted
func (r *BackoffRetrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.InitialInterval
	exp.MaxInterval = r.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.logger.Warn("Retrying ledger write after transient failure",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		r.metrics.RecordTransientRetry(ctx, attempt)
	})
}
