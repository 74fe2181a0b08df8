package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bootchartd/internal/app"
	"bootchartd/internal/archive"
	"bootchartd/internal/collector"
	"bootchartd/internal/pipeline"
)

func TestStartBackground(t *testing.T) {
	withController(t, &stubController{
		startFunc: func(_ context.Context, command string, args []string) (app.StartResult, error) {
			assert.Empty(t, command)
			assert.Empty(t, args)
			return app.StartResult{Handle: collector.Handle{PID: 88}}, nil
		},
	})
	buf := withOutput(t, cmdStart)

	require.NoError(t, cmdStart.RunE(cmdStart, nil))
	assert.Equal(t, "Collector started (pid 88)\n", buf.String())
}

func TestStartAlreadyRunning(t *testing.T) {
	withController(t, &stubController{
		startFunc: func(context.Context, string, []string) (app.StartResult, error) {
			return app.StartResult{Handle: collector.Handle{PID: 12}, AlreadyRunning: true}, nil
		},
	})
	buf := withOutput(t, cmdStart)

	require.NoError(t, cmdStart.RunE(cmdStart, nil))
	assert.Equal(t, "Collector is already running (pid 12)\n", buf.String())
}

func TestStartProfile(t *testing.T) {
	withController(t, &stubController{
		startFunc: func(_ context.Context, command string, args []string) (app.StartResult, error) {
			assert.Equal(t, "make", command)
			assert.Equal(t, []string{"-j4", "--keep-going"}, args)
			return app.StartResult{Stop: &app.StopResult{Pipeline: pipeline.Result{
				Archive:  archive.Result{Destination: "/var/log/bootchart.tgz", Bytes: 900},
				Rendered: "/var/log/bootchart.png",
			}}}, nil
		},
	})
	buf := withOutput(t, cmdStart)

	require.NoError(t, cmdStart.RunE(cmdStart, []string{"make", "-j4", "--keep-going"}))
	assert.Equal(t, "Profiled make; archive written to /var/log/bootchart.tgz (900 bytes)\nChart rendered to /var/log/bootchart.png\n", buf.String())
}

func TestStartDoesNotParseCommandFlags(t *testing.T) {
	require.NoError(t, cmdStart.ParseFlags([]string{"ls", "-la"}))
	assert.Equal(t, []string{"ls", "-la"}, cmdStart.Flags().Args())
}

func TestStartLaunchFailure(t *testing.T) {
	withController(t, &stubController{
		startFunc: func(context.Context, string, []string) (app.StartResult, error) {
			return app.StartResult{}, collector.ErrLaunch
		},
	})
	withOutput(t, cmdStart)

	err := cmdStart.RunE(cmdStart, nil)
	require.True(t, errors.Is(err, collector.ErrLaunch))
}
