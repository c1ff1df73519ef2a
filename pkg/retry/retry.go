// Package retry wraps fallible operations with exponential backoff,
// jitter, and pattern-based classification of retryable errors.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// networkSignatures are treated as retryable regardless of caller
// configuration. Matching is case-insensitive substring on the error text.
var networkSignatures = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"epipe",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"no such host",
	"unexpected eof",
}

// Options holds retry configuration for a single operation.
type Options struct {
	// Context names the operation in logs and in the permanent error.
	Context string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay on each successive retry.
	BackoffFactor float64
	// RetryableErrors are additional substrings that mark an error retryable.
	RetryableErrors []string
}

// DefaultOptions returns the standard retry configuration for an operation.
func DefaultOptions(operation string) Options {
	return Options{
		Context:       operation,
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 2.0
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return o
}

// baseDelay returns the unjittered delay before retry n (0-indexed),
// capped at MaxDelay.
func (o Options) baseDelay(n uint) time.Duration {
	d := float64(o.InitialDelay) * math.Pow(o.BackoffFactor, float64(n))
	if d > float64(o.MaxDelay) {
		d = float64(o.MaxDelay)
	}
	return time.Duration(d)
}

// jitter spreads a delay by ±20% so concurrent callers do not retry in
// lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

// Retryable reports whether err matches one of the caller-supplied patterns
// or a built-in network failure signature.
func Retryable(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if p != "" && strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	for _, sig := range networkSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// PermanentError is the single error kind surfaced after retries are
// exhausted or a non-retryable error occurs. The last underlying error is
// available via Unwrap.
type PermanentError struct {
	Context  string
	Attempts int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", e.Context, e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Do executes fn, retrying retryable failures with exponential backoff and
// jitter. The happy path returns immediately with no retry overhead. A
// permanent failure is always a *PermanentError carrying the causal chain.
func Do(ctx context.Context, opts Options, fn func() error) error {
	opts = opts.withDefaults()

	var attempts int
	err := retrygo.Do(
		func() error {
			attempts++
			return fn()
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(opts.MaxRetries)+1),
		retrygo.RetryIf(func(err error) bool {
			return Retryable(err, opts.RetryableErrors)
		}),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			return jitter(opts.baseDelay(n))
		}),
		retrygo.LastErrorOnly(true),
	)
	if err != nil {
		return &PermanentError{Context: opts.Context, Attempts: attempts, Err: err}
	}
	return nil
}

// DoWithResult executes fn with the same retry semantics as Do and returns
// its result.
func DoWithResult[T any](ctx context.Context, opts Options, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, opts, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
