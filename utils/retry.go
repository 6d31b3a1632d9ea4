package utils

import (
	"context"
	"errors"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/rs/zerolog"
)

type permanent interface {
	IsPermanent() bool
}

// ReliableExec retries f with exponential backoff until it succeeds, returns a
// permanent error, or maxTimeout elapses.
func ReliableExec(ctx context.Context, maxTimeout time.Duration, f func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = maxTimeout

	return backoff.RetryNotify(func() error {
		err := f(ctx)
		var p permanent
		if errors.As(err, &p) && p.IsPermanent() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("retryIn", d.String()).Msg("retrying after error")
	})
}
