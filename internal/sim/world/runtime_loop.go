package world

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type RunOptions struct {
	// Interval paces ticks; zero runs ticks back to back.
	Interval time.Duration
	// MaxTicks stops the run after that many ticks; zero means no limit.
	MaxTicks int
	// OnTick sees every tick's stats, including the one that went extinct.
	OnTick func(TickStats)
	// OnExtinction decides whether the run continues after the population died out; it
	// typically reseeds. A nil hook or a false return ends Run with ErrExtinct.
	OnExtinction func(TickStats) bool
}

// Run steps the world until ctx is done, MaxTicks is reached or the population goes extinct
// without being reseeded. Drift is logged and does not stop the run.
func (w *World) Run(ctx context.Context, opts RunOptions) error {
	var tickC <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for n := 0; opts.MaxTicks <= 0 || n < opts.MaxTicks; n++ {
		if tickC != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tickC:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		st, err := w.Step(ctx)
		if err != nil && !errors.Is(err, ErrDrift) {
			return err
		}
		if opts.OnTick != nil {
			opts.OnTick(st)
		}
		if st.Extinct {
			w.logger.Info("extinction", zap.Uint64("tick", st.Tick), zap.Int("epoch", st.Epoch))
			if opts.OnExtinction == nil || !opts.OnExtinction(st) {
				return ErrExtinct
			}
		}
	}
	return nil
}
