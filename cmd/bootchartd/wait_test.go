package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bootchartd/internal/app"
	"bootchartd/internal/archive"
	"bootchartd/internal/detector"
	"bootchartd/internal/pipeline"
)

func resetWaitFlags(t *testing.T, asInit bool) {
	t.Helper()
	old, oldTTY := waitAsInit, isTerminal
	t.Cleanup(func() { waitAsInit, isTerminal = old, oldTTY })
	waitAsInit = asInit
	isTerminal = func(io.Writer) bool { return false }
}

func TestWaitArchivesOnCompletion(t *testing.T) {
	resetWaitFlags(t, false)
	withController(t, &stubController{
		waitFunc: func(_ context.Context, params app.WaitParams) (pipeline.Result, error) {
			assert.False(t, params.AsInit)
			assert.Nil(t, params.OnState, "no spinner without a terminal")
			return pipeline.Result{Archive: archive.Result{Destination: "/var/log/bootchart.tgz", Bytes: 4096}}, nil
		},
	})
	buf := withOutput(t, cmdWait)

	require.NoError(t, cmdWait.RunE(cmdWait, nil))
	assert.Equal(t, "Boot complete; archive written to /var/log/bootchart.tgz (4096 bytes)\n", buf.String())
}

func TestWaitAsInit(t *testing.T) {
	resetWaitFlags(t, true)
	withController(t, &stubController{
		waitFunc: func(_ context.Context, params app.WaitParams) (pipeline.Result, error) {
			assert.True(t, params.AsInit)
			return pipeline.Result{}, nil
		},
	})
	withOutput(t, cmdWait)

	require.NoError(t, cmdWait.RunE(cmdWait, nil))
}

func TestWaitAbandoned(t *testing.T) {
	resetWaitFlags(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	withController(t, &stubController{
		waitFunc: func(ctx context.Context, _ app.WaitParams) (pipeline.Result, error) {
			cancel()
			<-ctx.Done()
			return pipeline.Result{}, ctx.Err()
		},
	})
	buf := withOutput(t, cmdWait)
	cmdWait.SetContext(ctx)

	require.NoError(t, cmdWait.RunE(cmdWait, nil))
	assert.Equal(t, "Wait abandoned, nothing archived\n", buf.String())
}

func TestWaitLabel(t *testing.T) {
	assert.Equal(t, "Waiting for /proc...", waitLabel(detector.StateWaitingForProcFS))
	assert.Equal(t, "Waiting for a session process...", waitLabel(detector.StateWaitingForSession))
	assert.Equal(t, "Archiving...", waitLabel(detector.StateDone))
}
