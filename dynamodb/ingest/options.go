package ingest

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

const (
	// MaxBatchSize is the most write requests DynamoDB accepts in one BatchWriteItem call.
	MaxBatchSize = 25

	DefaultMaxRetries = 6
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second
)

type Option func(*options)

type options struct {
	maxRetries  int
	backoff     BackoffFunc
	chunkSize   int
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func defaultOptions() options {
	return options{
		maxRetries:  DefaultMaxRetries,
		backoff:     ExponentialBackoff(DefaultBaseDelay, DefaultMaxDelay),
		chunkSize:   MaxBatchSize,
		concurrency: 4,
		logger:      slog.New(slog.DiscardHandler),
		sleep:       sleep,
	}
}

// WithMaxRetries sets how many times a chunk's unprocessed records are resent
// before they are abandoned. Zero sends every chunk exactly once.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = max(n, 0)
	}
}

// WithBackoff sets the base and cap of the exponential backoff between retries.
func WithBackoff(base, maxDelay time.Duration) Option {
	return WithCustomBackoff(ExponentialBackoff(base, maxDelay))
}

// WithCustomBackoff replaces the backoff function.
func WithCustomBackoff(fn BackoffFunc) Option {
	return func(o *options) {
		o.backoff = fn
	}
}

// WithJitter randomizes each delay of the configured backoff between zero
// and its computed value. Apply it after any backoff option.
func WithJitter() Option {
	return func(o *options) {
		o.backoff = FullJitter(o.backoff)
	}
}

// WithChunkSize lowers the number of records per request. Values outside
// 1..MaxBatchSize are clamped.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = min(max(n, 1), MaxBatchSize)
	}
}

// WithRateLimit makes every request wait for one token per record it carries.
func WithRateLimit(l *rate.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithWritesPerSecond is WithRateLimit with a limiter allowing one full batch of burst.
func WithWritesPerSecond(r float64) Option {
	return WithRateLimit(rate.NewLimiter(rate.Limit(r), MaxBatchSize))
}

// WithConcurrency bounds how many tables IngestAll writes at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = max(n, 1)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// BackoffFunc returns the duration to wait before retry attempt n, starting at 0.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns min(base * 2^attempt, maxDelay).
func ExponentialBackoff(base, maxDelay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt && d < maxDelay; i++ {
			d *= 2
		}
		return min(d, maxDelay)
	}
}

// FullJitter picks a uniformly random duration between 0 and fn(attempt).
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func FullJitter(fn BackoffFunc) BackoffFunc {
	return func(attempt int) time.Duration {
		d := fn(attempt)
		if d <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(d) + 1))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
