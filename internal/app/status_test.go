package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bootchartd/internal/detector"
	"bootchartd/internal/status"
)

func serving(services ...string) status.Report {
	r := status.Report{Services: map[string]status.Serving{}}
	for _, svc := range status.Services {
		r.Services[svc] = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, svc := range services {
		r.Services[svc] = healthpb.HealthCheckResponse_SERVING
	}
	return r
}

func TestStatusWithoutDetector(t *testing.T) {
	s := stubDeps(t)
	s.collector.running = true
	a := newTestApp(t, s)

	rep, err := a.Status(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, rep.CollectorRunning)
	assert.Equal(t, 321, rep.Collector.PID)
	assert.False(t, rep.Detector.Running)
	assert.False(t, rep.Archive.Exists)
	assert.Equal(t, s.cfg.ArchiveDestination, rep.Archive.Path)
}

func TestStatusQueriesDetector(t *testing.T) {
	s := stubDeps(t)
	s.running = true
	s.client.report = serving(status.ServiceProcFS, status.ServiceSession)
	require.NoError(t, os.WriteFile(s.cfg.ArchiveDestination, []byte("old archive"), 0o644))
	a := newTestApp(t, s)

	rep, err := a.Status(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, rep.Detector.Running)
	assert.Equal(t, 999, rep.Detector.PID)
	assert.Equal(t, detector.StateWaitingForSession, rep.Detector.State)
	assert.True(t, rep.Detector.SessionObserved)
	assert.True(t, rep.Archive.Exists)
	assert.EqualValues(t, len("old archive"), rep.Archive.Size)
	assert.True(t, s.client.closed)
}

func TestStatusDetectorQueryFailure(t *testing.T) {
	s := stubDeps(t)
	s.running = true
	s.client.err = errors.New("rpc error: code = Unavailable")
	a := newTestApp(t, s)

	rep, err := a.Status(context.Background(), time.Second)
	require.Error(t, err)
	assert.True(t, rep.Detector.Running)
}

func TestStatusRejectsZeroTimeout(t *testing.T) {
	s := stubDeps(t)
	a := newTestApp(t, s)

	_, err := a.Status(context.Background(), 0)
	require.Error(t, err)
}

func TestWatchDetector(t *testing.T) {
	s := stubDeps(t)
	s.running = true
	s.client.updates = []status.Report{
		serving(),
		serving(status.ServiceProcFS),
		serving(status.Services...),
	}
	a := newTestApp(t, s)

	var states []detector.State
	err := a.WatchDetector(context.Background(), time.Second, func(d DetectorStatus) {
		assert.Equal(t, 999, d.PID)
		states = append(states, d.State)
	})
	require.NoError(t, err)
	assert.Equal(t, []detector.State{detector.StateWaitingForProcFS, detector.StateWaitingForSession, detector.StateDone}, states)
}

func TestWatchDetectorNotRunning(t *testing.T) {
	s := stubDeps(t)
	a := newTestApp(t, s)

	err := a.WatchDetector(context.Background(), time.Second, func(DetectorStatus) {})
	require.ErrorIs(t, err, ErrDetectorNotRunning)
}

func TestStatusReportJSON(t *testing.T) {
	rep := StatusReport{
		CollectorRunning: true,
		Detector:         DetectorStatus{Running: true, PID: 12, State: detector.StateDone, SessionObserved: true},
		Archive:          ArchiveStatus{Path: "/var/log/bootchart.tgz", Exists: true, Size: 2048, ModTime: time.Unix(1700000000, 0)},
		ConfigSource:     "/etc/bootchartd.conf",
	}
	rep.Collector.PID = 44
	rep.Collector.SampleHz = "50"

	data, err := rep.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "/etc/bootchartd.conf", decoded["config"])

	coll := decoded["collector"].(map[string]any)
	assert.Equal(t, true, coll["running"])
	assert.EqualValues(t, 44, coll["pid"])
	assert.Equal(t, "50", coll["sample_hz"])

	det := decoded["detector"].(map[string]any)
	assert.Equal(t, "DONE", det["state"])
	assert.Equal(t, true, det["session_observed"])

	arc := decoded["archive"].(map[string]any)
	assert.EqualValues(t, 2048, arc["bytes"])
	assert.Equal(t, "2023-11-14T22:13:20Z", arc["modified_at"])
}
