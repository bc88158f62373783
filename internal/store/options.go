package store

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger        *zap.Logger
	pollInterval  time.Duration
	flushInterval time.Duration
	retryBase     time.Duration
	retryMax      time.Duration
	maxRetries    int
	errBuffer     int
	onError       func(error)
	clock         func() time.Time
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		pollInterval:  time.Second,
		flushInterval: 0,
		retryBase:     100 * time.Millisecond,
		retryMax:      30 * time.Second,
		maxRetries:    8,
		errBuffer:     16,
		clock:         time.Now,
	}
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPollInterval sets how often the database is checked for changes written
// by other stores. Zero disables the watcher; Poll can still be called directly.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithFlushInterval delays writes so bursts of updates are coalesced.
// Zero flushes as soon as the writer wakes up.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.flushInterval = d }
}

// WithRetry configures the backoff used after a failed write. After max
// consecutive failures the writer waits for the next update or Flush.
func WithRetry(base, limit time.Duration, max int) Option {
	return func(o *options) {
		o.retryBase = base
		o.retryMax = limit
		o.maxRetries = max
	}
}

// WithErrorHandler is called for every persistence or corruption error.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}
