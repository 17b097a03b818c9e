package uploads

import (
	"context"
	"time"
)

// pollUntil calls fetch at a fixed interval until terminal reports true, the
// attempt cap is reached, or ctx ends. Transient fetch errors consume an
// attempt but do not stop polling. It returns the last observed value and
// whether a terminal value was reached within the cap.
func pollUntil[T any](
	ctx context.Context,
	interval time.Duration,
	maxAttempts int,
	fetch func(ctx context.Context) (T, error),
	terminal func(T) bool,
) (T, bool, error) {
	var last T
	var lastErr error

	t := time.NewTicker(interval)
	defer t.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return last, false, ctx.Err()
		case <-t.C:
		}

		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, false, ctx.Err()
			}
			lastErr = err
			continue
		}
		last = v
		lastErr = nil
		if terminal(v) {
			return v, true, nil
		}
	}
	return last, false, lastErr
}
