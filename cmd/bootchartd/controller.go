package main

import (
	"context"
	"time"

	"bootchartd/internal/app"
	"bootchartd/internal/pipeline"
)

// controllerAPI is the facade surface the commands use.
type controllerAPI interface {
	Start(ctx context.Context, command string, args []string) (app.StartResult, error)
	Stop(ctx context.Context, params app.StopParams) (app.StopResult, error)
	Wait(ctx context.Context, params app.WaitParams) (pipeline.Result, error)
	Status(ctx context.Context, timeout time.Duration) (app.StatusReport, error)
	WatchDetector(ctx context.Context, connectTimeout time.Duration, fn func(app.DetectorStatus)) error
	Init(ctx context.Context, args []string) error
}

var controllerFactory = func() controllerAPI {
	return app.New(app.Options{ConfigPath: configPath, LogLevel: logLevel})
}

func controller() controllerAPI {
	return controllerFactory()
}
