package app

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bootchartd/internal/collector"
)

func TestStartBackground(t *testing.T) {
	s := stubDeps(t)
	a := newTestApp(t, s)

	res, err := a.Start(context.Background(), "", nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyRunning)
	assert.Equal(t, 321, res.Handle.PID)
	assert.Nil(t, res.Stop)
	assert.True(t, s.collector.running)
}

func TestStartAlreadyRunningIsNoop(t *testing.T) {
	s := stubDeps(t)
	s.collector.alreadyUp = true
	a := newTestApp(t, s)

	res, err := a.Start(context.Background(), "", nil)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Equal(t, 321, res.Handle.PID)
}

func TestStartLaunchFailure(t *testing.T) {
	s := stubDeps(t)
	s.collector.startErr = fmt.Errorf("%w: /lib/bootchart/bootchart-collector: no such file", collector.ErrLaunch)
	a := newTestApp(t, s)

	_, err := a.Start(context.Background(), "", nil)
	require.ErrorIs(t, err, collector.ErrLaunch)
}

func TestStartProfilesCommandThenExtracts(t *testing.T) {
	s := stubDeps(t)
	a := newTestApp(t, s)

	res, err := a.Start(context.Background(), "make", []string{"-j4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"make", "-j4"}, s.collector.profiled)
	require.NotNil(t, res.Stop)
	assert.Equal(t, s.cfg.ArchiveDestination, res.Stop.Pipeline.Archive.Destination)
	assert.Equal(t, 1, s.collector.releases)

	_, err = os.Stat(s.cfg.ArchiveDestination)
	assert.NoError(t, err)
	assert.Empty(t, s.stopCalls, "profiling never signals a detector")
}
