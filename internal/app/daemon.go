package app

import (
	"context"
	"fmt"
	"os"

	"bootchartd/internal/detector"
	bcerrors "bootchartd/internal/errors"
	"bootchartd/internal/logging"
	"bootchartd/internal/pipeline"
)

// WaitParams configures Wait.
type WaitParams struct {
	// AsInit marks a detector spawned by PID 1: it serves no status socket
	// and archives the kernel log. It still records its PID once /run is
	// usable so a manual stop can end it.
	AsInit bool
	// OnState is told about every detector state.
	OnState func(detector.State)
}

// Wait blocks until boot has completed, then runs one extraction. A manual
// detector publishes its progress on the status socket meanwhile.
// Cancelling ctx abandons the wait without extracting.
func (a *App) Wait(ctx context.Context, params WaitParams) (pipeline.Result, error) {
	log := logging.Component(a.log, "detector")

	var srv statusServer
	if !params.AsInit {
		s, err := listenStatus(a.cfg.RuntimeDir, log)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("start status server: %w", err)
		}
		srv = s
		defer bcerrors.DeferClose(log, s, "failed to close status server")
	}

	// recorded is only touched from the detector's goroutine and the
	// deferred cleanup after Run returns.
	var recorded bool
	forget := func() {
		if !recorded {
			return
		}
		recorded = false
		if err := removeDetectorPID(a.cfg.RuntimeDir); err != nil {
			log.Warn().Err(err).Msg("failed to remove detector pid file")
		}
	}
	defer forget()

	opts := detectorTimings
	opts.Table = newProcessTable()
	opts.WaitSet = a.cfg.WaitSet
	opts.Logger = log
	opts.Observer = func(st detector.State) {
		if srv != nil {
			srv.SetState(st)
		}
		if params.AsInit {
			switch st {
			case detector.StateWaitingForSession:
				if err := recordDetectorPID(a.cfg.RuntimeDir, os.Getpid()); err != nil {
					log.Warn().Err(err).Msg("cannot record detector pid, a manual stop will not reach this detector")
				} else {
					recorded = true
				}
			case detector.StateDone:
				forget()
			}
		}
		if params.OnState != nil {
			params.OnState(st)
		}
	}
	opts.OnSession = func(string) {
		if srv != nil {
			srv.SessionObserved()
		}
	}

	var res pipeline.Result
	err := detector.New(opts).Run(ctx, func(ctx context.Context) error {
		r, err := a.runPipeline(ctx, newCollector(a.cfg, a.log), params.AsInit)
		res = r
		return err
	})
	return res, err
}
