// Package retry wraps unreliable external calls with bounded attempts
// and exponential backoff.
//
// Two failure families get different treatment. Transient failures
// (rate limits, timeouts, connection-level errors) are retried with a
// doubling delay. Everything else is assumed permanent and propagates
// immediately, so a misconfigured API key never burns the retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// RateLimitMessage is the user-safe result returned when a rate-limited
// call exhausts all attempts. It is a normal displayable string, not an
// error, so the conversation keeps flowing.
const RateLimitMessage = "❌ Rate limit exceeded. Please try again later."

// RateLimitError marks an explicit "too many requests" condition from an
// upstream service (HTTP 429). Detect it with errors.As.
type RateLimitError struct {
	Service string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.Service == "" {
		return "rate limited"
	}
	return fmt.Sprintf("%s: rate limited", e.Service)
}

// Invoker retries a unit of work with exponential backoff.
type Invoker struct {
	maxAttempts  int
	initialDelay time.Duration
	logger       *slog.Logger
}

// New creates an Invoker. Zero or negative values fall back to the
// defaults of 3 attempts and a 1s initial delay.
func New(maxAttempts int, initialDelay time.Duration, logger *slog.Logger) *Invoker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		logger:       logger,
	}
}

// Do runs fn up to maxAttempts times.
//
// Transient errors are retried after a backoff delay that doubles per
// attempt. A rate-limit condition that survives every attempt collapses
// into ([RateLimitMessage], nil) rather than an error. Any other error
// that survives every attempt — or any non-transient error — is
// returned to the caller. Backoff sleeps honor ctx cancellation.
func (inv *Invoker) Do(ctx context.Context, fn func() (string, error)) (string, error) {
	delay := inv.initialDelay

	var lastErr error
	for attempt := 1; attempt <= inv.maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !Transient(err) {
			return "", err
		}
		lastErr = err

		if attempt == inv.maxAttempts {
			break
		}

		inv.logger.Debug("retrying after transient error",
			"attempt", attempt,
			"max_attempts", inv.maxAttempts,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	var rl *RateLimitError
	if errors.As(lastErr, &rl) {
		return RateLimitMessage, nil
	}
	return "", fmt.Errorf("all %d attempts failed: %w", inv.maxAttempts, lastErr)
}

// DoSoft is Do with every remaining failure converted to a displayable
// error string. Tool invocations use this mode: a tool result is always
// text, never an exception crossing the tool boundary.
func (inv *Invoker) DoSoft(ctx context.Context, fn func() (string, error)) string {
	result, err := inv.Do(ctx, fn)
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	return result
}

// Transient reports whether err is worth retrying: an explicit rate
// limit, a timeout, or a connection-level failure that occurs before
// any bytes reach the server.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Dial/connect failures happen before the request is sent, making
	// retry safe. ECONNRESET is intentionally excluded — it can occur
	// after the server has processed the request.
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ECONNREFUSED:
			return true
		}
	}

	return false
}
