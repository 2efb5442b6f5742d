package kvstore

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Options configures the open sequence and the readiness gate of a store
type Options struct {
	// OpenAttempts is the total number of open attempts before the store fails.
	OpenAttempts int
	// OpenRetryDelay is the pause between two open attempts.
	OpenRetryDelay time.Duration
	// ReadyPollAttempts is how often an operation polls for the connection before it gives up.
	ReadyPollAttempts int
	// ReadyPollInterval is the pause between two polls.
	ReadyPollInterval time.Duration
	// Metrics receives the operation counters and latencies, nil disables metrics.
	Metrics *metrics.Set
}

// DefaultOptions returns the default store options
func DefaultOptions() Options {
	return Options{
		OpenAttempts:      10,
		OpenRetryDelay:    10 * time.Millisecond,
		ReadyPollAttempts: 100,
		ReadyPollInterval: 5 * time.Millisecond,
	}
}

// Option changes one setting of Options
type Option func(*Options)

// WithOpenAttempts sets the total number of open attempts (at least 1)
func WithOpenAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.OpenAttempts = n
		}
	}
}

// WithOpenRetryDelay sets the pause between two open attempts
func WithOpenRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.OpenRetryDelay = d
		}
	}
}

// WithReadyPollAttempts sets how often an operation polls for the connection (at least 1)
func WithReadyPollAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ReadyPollAttempts = n
		}
	}
}

// WithReadyPollInterval sets the pause between two polls
func WithReadyPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ReadyPollInterval = d
		}
	}
}

// WithMetrics records operation metrics in set
func WithMetrics(set *metrics.Set) Option {
	return func(o *Options) {
		o.Metrics = set
	}
}
