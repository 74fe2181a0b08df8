package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"bootchartd/internal/collector"
	"bootchartd/internal/detector"
	"bootchartd/internal/status"
)

// ErrDetectorNotRunning is returned when no detector answers on the socket.
var ErrDetectorNotRunning = errors.New("no boot completion detector is waiting")

// DetectorStatus describes a waiting detector.
type DetectorStatus struct {
	Running         bool
	PID             int
	State           detector.State
	SessionObserved bool
}

// ArchiveStatus describes the archive destination.
type ArchiveStatus struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
}

// StatusReport is a snapshot of collector, detector and archive.
type StatusReport struct {
	Collector        collector.Handle
	CollectorRunning bool
	Detector         DetectorStatus
	Archive          ArchiveStatus
	ConfigSource     string
}

// Status gathers the current state. An unreachable detector is reported as
// not running rather than as an error.
func (a *App) Status(ctx context.Context, timeout time.Duration) (StatusReport, error) {
	if timeout <= 0 {
		return StatusReport{}, errors.New("timeout must be greater than 0")
	}
	rep := StatusReport{ConfigSource: a.cfg.Source}

	rep.Collector, rep.CollectorRunning = newCollector(a.cfg, a.log).Running(ctx)
	rep.Archive = archiveStatus(a.cfg.ArchiveDestination)

	if !detectorIsRunning(a.cfg.RuntimeDir) {
		return rep, nil
	}
	rep.Detector.Running = true
	if pid, err := detectorPID(a.cfg.RuntimeDir); err == nil {
		rep.Detector.PID = pid
	}
	err := a.withStatusClient(ctx, timeout, func(ctx context.Context, c statusClient) error {
		r, err := c.Report(ctx)
		if err != nil {
			return err
		}
		rep.Detector.State = r.State()
		rep.Detector.SessionObserved = r.SessionObserved()
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("query detector: %w", err)
	}
	return rep, nil
}

// WatchDetector streams detector progress to fn until the detector finishes
// or ctx is cancelled.
func (a *App) WatchDetector(ctx context.Context, connectTimeout time.Duration, fn func(DetectorStatus)) error {
	if !detectorIsRunning(a.cfg.RuntimeDir) {
		return ErrDetectorNotRunning
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	client, err := dialStatus(dialCtx, a.cfg.RuntimeDir)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to detector: %w", err)
	}
	defer client.Close()

	pid, _ := detectorPID(a.cfg.RuntimeDir)
	return client.Watch(ctx, func(r status.Report) {
		fn(DetectorStatus{
			Running:         true,
			PID:             pid,
			State:           r.State(),
			SessionObserved: r.SessionObserved(),
		})
	})
}

func archiveStatus(path string) ArchiveStatus {
	st := ArchiveStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return st
	}
	st.Exists = true
	st.Size = info.Size()
	st.ModTime = info.ModTime()
	return st
}

// JSON renders the report through protojson.
func (r StatusReport) JSON() ([]byte, error) {
	coll := map[string]any{"running": r.CollectorRunning}
	if r.CollectorRunning {
		coll["pid"] = r.Collector.PID
		if r.Collector.SampleHz != "" {
			coll["sample_hz"] = r.Collector.SampleHz
		}
		if r.Collector.Mode != "" {
			coll["mode"] = string(r.Collector.Mode)
		}
		if !r.Collector.StartedAt.IsZero() {
			coll["started_at"] = r.Collector.StartedAt.UTC().Format(time.RFC3339)
		}
	}

	det := map[string]any{"running": r.Detector.Running}
	if r.Detector.Running {
		det["pid"] = r.Detector.PID
		det["state"] = r.Detector.State.String()
		det["session_observed"] = r.Detector.SessionObserved
	}

	arc := map[string]any{"path": r.Archive.Path, "exists": r.Archive.Exists}
	if r.Archive.Exists {
		arc["bytes"] = r.Archive.Size
		arc["modified_at"] = r.Archive.ModTime.UTC().Format(time.RFC3339)
	}

	st, err := structpb.NewStruct(map[string]any{
		"collector": coll,
		"detector":  det,
		"archive":   arc,
		"config":    r.ConfigSource,
	})
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
}
