package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/jyasuu/llm-playground/internal/logger"
	"github.com/jyasuu/llm-playground/internal/notify"
)

const (
	// MaxRetryAttempts bounds the extra calls made after the first attempt.
	// A rate-limited exchange therefore performs at most MaxRetryAttempts+1
	// adapter calls.
	MaxRetryAttempts = 3

	// BackoffExponentCap caps the backoff exponent so a misconfigured
	// attempt counter can never produce multi-minute sleeps.
	BackoffExponentCap = 5

	// DefaultRetryBaseDelay is used when the configuration provides none.
	DefaultRetryBaseDelay = 2000 * time.Millisecond
)

// BackoffDelay returns the delay before retry number attempt (1-based):
// base * 2^min(attempt-1, BackoffExponentCap).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	if exp > BackoffExponentCap {
		exp = BackoffExponentCap
	}
	return base * time.Duration(1<<exp)
}

// MaxTotalBackoff is the documented worst-case total sleep for one exchange:
// the sum of BackoffDelay(base, 1..MaxRetryAttempts).
func MaxTotalBackoff(base time.Duration) time.Duration {
	var total time.Duration
	for attempt := 1; attempt <= MaxRetryAttempts; attempt++ {
		total += BackoffDelay(base, attempt)
	}
	return total
}

// RetryOptions configures CallWithRetry.
type RetryOptions struct {
	// BaseDelay is the first backoff delay; defaults to DefaultRetryBaseDelay.
	BaseDelay time.Duration
	// Notifier receives the warning per wait and one error on terminal failure.
	Notifier notify.Notifier
}

// CallWithRetry invokes call, retrying on rate-limit errors with exponential
// backoff. All other errors return immediately. Retryable errors never escape
// unless MaxRetryAttempts is exhausted; every terminal error is paired with
// exactly one error-severity notification.
func CallWithRetry(ctx context.Context, call func(context.Context) (*CompletionResponse, error), opts RetryOptions) (*CompletionResponse, error) {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	attempt := 0
	for {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}

		if IsRateLimited(err) && attempt < MaxRetryAttempts {
			attempt++
			delay := BackoffDelay(opts.BaseDelay, attempt)

			notifier.Emit(
				fmt.Sprintf("Rate limit hit. Retrying in %dms... (attempt %d/%d)", delay.Milliseconds(), attempt, MaxRetryAttempts+1),
				notify.SeverityWarning,
				delay+time.Second,
			)
			logger.Warn("rate limit hit, retrying in %s (attempt %d/%d)", delay, attempt, MaxRetryAttempts)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			continue
		}

		if IsRateLimited(err) {
			exhausted := fmt.Errorf("rate limit exceeded: max retries (%d) reached: %w", MaxRetryAttempts+1, err)
			notifier.Emit(
				fmt.Sprintf("Rate limit exceeded. Max retries (%d) reached. Please wait before trying again.", MaxRetryAttempts+1),
				notify.SeverityError,
				8*time.Second,
			)
			return nil, exhausted
		}

		notifier.Emit(fmt.Sprintf("API Error: %v", err), notify.SeverityError, 6*time.Second)
		return nil, err
	}
}
