package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// callWithRetry runs fn under the per-call timeout and retries failures with
// linear backoff. A cancelled run context stops retrying immediately.
func callWithRetry[T any](ctx context.Context, cfg Config, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < cfg.MaxAttempts; i++ {
		if i > 0 {
			logger.Warn("Retrying collaborator call", "op", op, "attempt", i+1, "last_error", lastErr)
			if err := sleepCtx(ctx, cfg.RetryBackoff*time.Duration(i)); err != nil {
				return zero, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.PerCallTimeout)
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w: %w", op, cfg.MaxAttempts, ErrCollaboratorUnavailable, lastErr)
}

func complete(ctx context.Context, llm Completer, cfg Config, logger *slog.Logger, op, prompt string) (string, error) {
	return callWithRetry(ctx, cfg, logger, op, func(ctx context.Context) (string, error) {
		return llm.Complete(ctx, prompt)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
