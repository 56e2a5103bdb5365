package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/shoplist/internal/apperr"
)

const retryBaseDelay = 10 * time.Millisecond

// RetryOnConflict runs fn and re-runs it with exponential backoff, up to
// attempts extra times, while it fails with apperr.ErrConcurrentModification.
// fn must reload whatever it writes on every call. onConflict, if non-nil,
// is invoked for every conflict observed. Any other error stops immediately.
func RetryOnConflict(ctx context.Context, attempts uint64, onConflict func(error), fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(retryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, apperr.ErrConcurrentModification) {
			if onConflict != nil {
				onConflict(err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
