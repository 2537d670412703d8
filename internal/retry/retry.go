// Package retry implements the transient-failure backoff policy for
// upstream service calls.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// transienter is implemented by errors that may self-resolve with retry.
type transienter interface {
	Transient() bool
}

// Policy holds the retry budget for one call site. Audio-heavy chat calls
// carry a larger budget than synthesis calls.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do runs op, retrying transient failures up to MaxRetries times with
// exponential backoff (BaseDelay * 2^attempt) plus random jitter in
// [0, 1) seconds to avoid synchronized retry storms. Fatal errors return
// immediately; an exhausted budget returns the last transient error, not
// a generic timeout.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			slog.Warn("retry budget exhausted",
				"op", name,
				"attempts", attempt+1,
				"error", err,
			)
			return err
		}

		delay := p.BaseDelay*(1<<attempt) + time.Duration(rand.Float64()*float64(time.Second))
		slog.Info("transient upstream error, backing off",
			"op", name,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func isTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}
