package pipeline

import (
	"context"
	"time"

	"sketchreel/internal/logging"
)

// Run repeats Cycle until ctx is cancelled. It sleeps the poll interval
// after a clean cycle and the error backoff after a failed one; neither a
// sync failure nor a job failure stops the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("watch loop started",
		logging.String(logging.FieldEventType, "loop_start"),
		logging.String("remote", p.deps.Syncer.Describe()),
		logging.String("input_dir", p.cfg.Paths.InputDir),
		logging.Duration("poll_interval", p.cfg.PollInterval()),
		logging.Int("max_attempts", p.policy.MaxAttempts),
	)
	for {
		_, err := p.Cycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("watch loop stopped", logging.String(logging.FieldEventType, "loop_stop"))
			return nil
		}

		wait := p.cfg.PollInterval()
		if err != nil {
			wait = p.cfg.ErrorBackoff()
			p.logger.Warn("cycle aborted; backing off",
				logging.Error(err),
				logging.Duration("backoff", wait),
				logging.String(logging.FieldEventType, "cycle_aborted"),
			)
		} else {
			p.logger.Debug("waiting for next cycle", logging.Duration("wait", wait))
		}

		if err := p.wait(ctx, wait); err != nil {
			p.logger.Info("watch loop stopped", logging.String(logging.FieldEventType, "loop_stop"))
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
