package app

import (
	"context"

	"bootchartd/internal/logging"
	"bootchartd/internal/pipeline"
)

// StopParams configures Stop.
type StopParams struct {
	// Force kills a waiting detector that ignores SIGTERM.
	Force bool
}

// StopResult reports an extraction and its aftermath.
type StopResult struct {
	Pipeline pipeline.Result
	// DetectorStopped is true when a waiting detector was terminated.
	DetectorStopped bool
	DetectorErr     error
}

// Stop extracts the running collector's samples into the archive. A detector
// still waiting for the session is terminated afterwards so the boot is not
// archived twice; failing to do so is reported but does not fail Stop.
func (a *App) Stop(ctx context.Context, params StopParams) (StopResult, error) {
	res, err := a.runPipeline(ctx, newCollector(a.cfg, a.log), false)
	out := StopResult{Pipeline: res}
	if err != nil {
		return out, err
	}

	out.DetectorStopped, out.DetectorErr = stopDetector(a.cfg.RuntimeDir, params.Force)
	if out.DetectorErr != nil {
		a.log.Warn().Err(out.DetectorErr).Msg("failed to stop waiting detector")
	}
	return out, nil
}

func (a *App) runPipeline(ctx context.Context, col pipeline.Collector, isInit bool) (pipeline.Result, error) {
	p := pipeline.New(pipeline.Options{
		Config:    a.cfg,
		IsInit:    isInit,
		Collector: col,
		KernelLog: readKernelLog,
		Logger:    logging.Component(a.log, "pipeline"),
	})
	return p.Run(ctx)
}
