// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// RunWithTimeout runs fn under a hard deadline. On timeout it returns a
// typed timeout error naming the operation and budget without waiting for
// the orphaned call to finish; the result channel is buffered, so a late
// completion is dropped rather than leaked or resurrected. Results travel
// through the channel only — never through shared captures — so a retried
// attempt can never observe a stale value from an earlier one.
//
// Cancellation of the parent context is reported as the context error, not
// as a timeout. fn receives the derived context so well-behaved calls stop
// early. A non-positive timeout runs fn with no added deadline.
func RunWithTimeout(ctx context.Context, operation string, timeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		// A well-behaved fn may return the derived context's deadline
		// error itself; normalise it so callers always see the typed
		// timeout regardless of which side of the race finished first.
		if errors.Is(out.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(operation, timeout)
		}
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(operation, timeout)
		}
		return nil, ctx.Err()
	}
}

func timeoutError(operation string, timeout time.Duration) error {
	return tserr.New(
		tserr.CodeResilienceTimeout,
		fmt.Sprintf("operation %q timed out after %s", operation, timeout),
		tserr.FieldOperation(operation),
		tserr.Field("timeout", timeout.String()),
	)
}
