package registry

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/git-pkgs/igcache/internal/core"
)

type outcome[T any] struct {
	value T
	err   error
}

// firstSuccess runs call against every registry concurrently and returns the
// first successful value. It returns false once every call has failed, when
// ctx is done, or immediately when regs is empty.
//
// Losers keep running after a winner is found. Their failures are logged at
// debug level since nobody is waiting for them any more.
func firstSuccess[T any](ctx context.Context, logger *zap.Logger, op string, regs []*Registry,
	call func(context.Context, *Registry) (T, error)) (T, bool) {
	var zero T
	if len(regs) == 0 {
		return zero, false
	}

	// Buffered so workers never block after the coordinator has returned.
	results := make(chan outcome[T], len(regs))
	var won atomic.Bool

	for _, r := range regs {
		go func(r *Registry) {
			v, err := call(ctx, r)
			if err != nil {
				logFailure(logger, op, r.BaseURL(), err, won.Load())
			}
			results <- outcome[T]{value: v, err: err}
		}(r)
	}

	for failed := 0; failed < len(regs); {
		select {
		case <-ctx.Done():
			return zero, false
		case res := <-results:
			if res.err == nil {
				won.Store(true)
				return res.value, true
			}
			failed++
		}
	}
	return zero, false
}

func logFailure(logger *zap.Logger, op, registry string, err error, late bool) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("registry", registry),
		zap.Error(err),
	}
	switch {
	case late:
		logger.Debug("registry call finished after another registry answered", fields...)
	case errors.Is(err, core.ErrNotFound):
		logger.Info("package not available on registry", fields...)
	default:
		logger.Warn("registry call failed", fields...)
	}
}
