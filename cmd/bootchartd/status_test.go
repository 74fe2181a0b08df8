package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bootchartd/internal/app"
	"bootchartd/internal/collector"
	"bootchartd/internal/detector"
)

func resetStatusFlags(t *testing.T) {
	t.Helper()
	w, j, to := statusWatch, statusJSON, statusTimeoutSeconds
	t.Cleanup(func() { statusWatch, statusJSON, statusTimeoutSeconds = w, j, to })
	statusWatch, statusJSON, statusTimeoutSeconds = false, false, 2
}

func sampleReport() app.StatusReport {
	return app.StatusReport{
		CollectorRunning: true,
		Collector:        collector.Handle{PID: 5, SampleHz: "50"},
		Detector:         app.DetectorStatus{Running: true, PID: 6, State: detector.StateWaitingForSession},
		Archive:          app.ArchiveStatus{Path: "/var/log/bootchart.tgz"},
	}
}

func TestStatusText(t *testing.T) {
	resetStatusFlags(t)
	withController(t, &stubController{
		statusFunc: func(_ context.Context, timeout time.Duration) (app.StatusReport, error) {
			assert.Equal(t, 2*time.Second, timeout)
			return sampleReport(), nil
		},
	})
	buf := withOutput(t, cmdStatus)

	require.NoError(t, cmdStatus.RunE(cmdStatus, nil))
	assert.Equal(t, "Collector: running (pid 5)\n"+
		"Detector:  WAITING_FOR_SESSION (pid 6)\n"+
		"Archive:   /var/log/bootchart.tgz (missing)\n", buf.String())
}

func TestStatusJSON(t *testing.T) {
	resetStatusFlags(t)
	statusJSON = true
	withController(t, &stubController{
		statusFunc: func(context.Context, time.Duration) (app.StatusReport, error) {
			return sampleReport(), nil
		},
	})
	buf := withOutput(t, cmdStatus)

	require.NoError(t, cmdStatus.RunE(cmdStatus, nil))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	det := decoded["detector"].(map[string]any)
	assert.Equal(t, "WAITING_FOR_SESSION", det["state"])
}

func TestStatusWatch(t *testing.T) {
	resetStatusFlags(t)
	statusWatch = true
	withController(t, &stubController{
		watchFunc: func(_ context.Context, _ time.Duration, fn func(app.DetectorStatus)) error {
			fn(app.DetectorStatus{Running: true, State: detector.StateWaitingForSession})
			fn(app.DetectorStatus{Running: true, State: detector.StateDone})
			return nil
		},
	})
	buf := withOutput(t, cmdStatus)

	require.NoError(t, cmdStatus.RunE(cmdStatus, nil))
	assert.Equal(t, "detector WAITING_FOR_SESSION\ndetector DONE\n", buf.String())
}

func TestStatusWatchWithoutDetector(t *testing.T) {
	resetStatusFlags(t)
	statusWatch = true
	withController(t, &stubController{
		watchFunc: func(context.Context, time.Duration, func(app.DetectorStatus)) error {
			return app.ErrDetectorNotRunning
		},
	})
	buf := withOutput(t, cmdStatus)

	require.NoError(t, cmdStatus.RunE(cmdStatus, nil))
	assert.Equal(t, "No detector is waiting\n", buf.String())
}
