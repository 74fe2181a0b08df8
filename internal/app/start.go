package app

import (
	"context"
	"errors"

	"bootchartd/internal/collector"
)

// StartResult describes the collector after Start.
type StartResult struct {
	Handle         collector.Handle
	AlreadyRunning bool
	// Stop is set when a profiled command ran and extraction followed it.
	Stop *StopResult
}

// Start launches the collector in the background. With a command, the
// command is profiled: it runs to completion in the foreground and the
// samples are extracted right after, whatever its exit status.
func (a *App) Start(ctx context.Context, command string, args []string) (StartResult, error) {
	col := newCollector(a.cfg, a.log)

	if command == "" {
		h, err := col.StartBackground(ctx, a.cfg.SampleHz)
		switch {
		case errors.Is(err, collector.ErrAlreadyRunning):
			return StartResult{Handle: h, AlreadyRunning: true}, nil
		case err != nil:
			return StartResult{}, err
		}
		return StartResult{Handle: h}, nil
	}

	var res StartResult
	err := col.Profile(ctx, a.cfg.SampleHz, command, args, func(ctx context.Context) error {
		stop, err := a.runPipeline(ctx, col, false)
		res.Stop = &StopResult{Pipeline: stop}
		return err
	})
	return res, err
}
