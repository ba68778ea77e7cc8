package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
)

// read runs a read-only call, retrying with exponential backoff while the
// ledger is unavailable. Other failures return immediately.
func (g *Gateway) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		err = classify(fn(callCtx), false)
		cancel()
		if err == nil || apperror.CodeOf(err) != apperror.CodeLedgerUnavailable || attempt >= g.readRetries {
			break
		}
		wait := g.readBackoff << attempt
		g.log.Debug("retrying ledger read", zap.String("op", op), zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			err = apperror.Wrap(apperror.CodeLedgerUnavailable, "ledger unavailable", ctx.Err())
			g.metrics.observe(op, start, err)
			return err
		}
	}
	g.metrics.observe(op, start, err)
	return err
}

// mutate submits a ledger mutation exactly once.
func (g *Gateway) mutate(ctx context.Context, op string, fn func(ctx context.Context) (Receipt, error)) (Receipt, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	rcpt, err := fn(callCtx)
	err = classify(err, true)
	g.metrics.observe(op, start, err)
	if err != nil {
		level := g.log.Warn
		if apperror.CodeOf(err) == apperror.CodeLedgerOutcomeUnknown {
			level = g.log.Error
		}
		level("ledger mutation failed", zap.String("op", op), zap.Error(err))
		return Receipt{}, err
	}
	g.log.Info("ledger mutation confirmed", zap.String("op", op), zap.String("tx", rcpt.TxHash))
	return rcpt, nil
}
