package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bootchartd/internal/archive"
	"bootchartd/internal/boot"
	"bootchartd/internal/collector"
	"bootchartd/internal/config"
	"bootchartd/internal/detector"
	"bootchartd/internal/logging"
	"bootchartd/internal/proctable"
	"bootchartd/internal/status"
)

// collectorManager is the collector surface the facade drives.
type collectorManager interface {
	StartBackground(ctx context.Context, sampleHz string) (collector.Handle, error)
	StartInit(ctx context.Context, sampleHz string) (collector.Handle, error)
	Profile(ctx context.Context, sampleHz, command string, args []string, stop collector.StopFunc) error
	Running(ctx context.Context) (collector.Handle, bool)
	Dump(ctx context.Context, dir string) error
	Release(ctx context.Context) error
}

// statusClient is the detector status connection.
type statusClient interface {
	Report(ctx context.Context) (status.Report, error)
	Watch(ctx context.Context, fn func(status.Report)) error
	Close() error
}

// statusServer publishes detector progress.
type statusServer interface {
	SetState(detector.State)
	SessionObserved()
	Close() error
}

func defaultCollector(cfg config.Config, log zerolog.Logger) collectorManager {
	return collector.New(collector.Options{
		Path:       cfg.CollectorPath,
		RuntimeDir: cfg.RuntimeDir,
		HeaderPath: cfg.HeaderPath,
		Logger:     logging.Component(log, "collector"),
	})
}

func defaultProcessTable() detector.ProcessTable {
	return proctable.New()
}

var (
	loadConfig        = config.Load
	newCollector      = defaultCollector
	newProcessTable   = defaultProcessTable
	readKernelLog     = archive.ReadKernelLog
	detectorIsRunning = status.IsRunning
	detectorPID       = status.RunningPID
	stopDetector      = status.StopDetector
	recordDetectorPID = status.WritePID
	removeDetectorPID = status.RemovePID
	listenStatus      = func(runtimeDir string, log zerolog.Logger) (statusServer, error) {
		return status.Listen(runtimeDir, log)
	}
	dialStatus = func(ctx context.Context, runtimeDir string) (statusClient, error) {
		return status.Dial(ctx, runtimeDir)
	}
	detectorTimings = detector.Options{}
)

func resetDeps() {
	loadConfig = config.Load
	newCollector = defaultCollector
	newProcessTable = defaultProcessTable
	readKernelLog = archive.ReadKernelLog
	detectorIsRunning = status.IsRunning
	detectorPID = status.RunningPID
	stopDetector = status.StopDetector
	recordDetectorPID = status.WritePID
	removeDetectorPID = status.RemovePID
	listenStatus = func(runtimeDir string, log zerolog.Logger) (statusServer, error) {
		return status.Listen(runtimeDir, log)
	}
	dialStatus = func(ctx context.Context, runtimeDir string) (statusClient, error) {
		return status.Dial(ctx, runtimeDir)
	}
	detectorTimings = detector.Options{}
	currentIdentity = boot.CurrentIdentity
	newBootController = func(opts boot.Options) bootRunner { return boot.NewController(opts) }
}

func (a *App) withStatusClient(ctx context.Context, timeout time.Duration, fn func(context.Context, statusClient) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := dialStatus(ctx, a.cfg.RuntimeDir)
	if err != nil {
		return fmt.Errorf("connect to detector: %w", err)
	}
	defer client.Close()

	return fn(ctx, client)
}
