package modem

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/logging"
)

// retry calls fn until it succeeds, at most attempts times, sleeping delay
// between calls. The last error is returned.
func retry(ctx context.Context, log logging.Logger, what string, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Debug("retrying", "op", what, "attempt", i, "attempts", attempts, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errkind.Wrap(errkind.Timeout, what, pkgerrors.WithMessage(ctx.Err(), err.Error()))
		case <-t.C:
		}
	}
	return pkgerrors.WithMessagef(err, "%s failed after %d attempts", what, attempts)
}
