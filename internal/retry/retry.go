// Package retry re-runs an operation a bounded number of times and surfaces the
// last failure when every attempt fails.
package retry

import (
	"context"

	"github.com/rs/zerolog/log"
)

// DefaultAttempts is the attempt budget used when none is configured.
const DefaultAttempts = 3

// Result holds the outcome of a single attempt.
type Result[T any] struct {
	Value T
	Err   error
}

// Do runs op up to attempts times, without delay, and returns the first
// successful value. Every error is retryable. When all attempts fail the error
// of the last attempt is returned unchanged. Attempts below 1 count as 1.
//
// A cancelled ctx stops the loop before the next attempt; the last attempt
// error is returned if there was one, ctx.Err() otherwise.
func Do[T any](ctx context.Context, attempts int, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var last Result[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last.Err == nil {
				last.Err = err
			}
			break
		}

		last.Value, last.Err = op(ctx, attempt)
		if last.Err == nil {
			return last.Value, nil
		}

		log.Debug().
			Err(last.Err).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Msg("Attempt failed")
	}

	var zero T
	return zero, last.Err
}
