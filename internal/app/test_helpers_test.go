package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bootchartd/internal/collector"
	"bootchartd/internal/config"
	"bootchartd/internal/detector"
	"bootchartd/internal/pipeline"
	"bootchartd/internal/status"
)

// fakeCollector buffers one dump worth of samples per start.
type fakeCollector struct {
	mu         sync.Mutex
	running    bool
	alreadyUp  bool
	startErr   error
	handle     collector.Handle
	profiled   []string
	dumps      int
	releases   int
	initStarts int
}

func (f *fakeCollector) StartBackground(context.Context, string) (collector.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return collector.Handle{}, f.startErr
	}
	if f.alreadyUp {
		return f.handle, collector.ErrAlreadyRunning
	}
	f.running = true
	return f.handle, nil
}

func (f *fakeCollector) StartInit(context.Context, string) (collector.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initStarts++
	f.running = true
	return f.handle, nil
}

func (f *fakeCollector) Profile(ctx context.Context, hz, command string, args []string, stop collector.StopFunc) error {
	if _, err := f.StartBackground(ctx, hz); err != nil {
		return err
	}
	f.mu.Lock()
	f.profiled = append([]string{command}, args...)
	f.mu.Unlock()
	return stop(ctx)
}

func (f *fakeCollector) Running(context.Context) (collector.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle, f.running
}

func (f *fakeCollector) Dump(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dumps++
	if !f.running {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, pipeline.MarkerLog), []byte("cpu 1"), 0o644)
}

func (f *fakeCollector) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.running = false
	return nil
}

type fakeTable struct {
	mu      sync.Mutex
	session string
}

func (f *fakeTable) Available() bool { return true }

// start makes a session process appear while a detector is polling.
func (f *fakeTable) start(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = name
}

func (f *fakeTable) FindAny(_ context.Context, names []string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		if n == f.session {
			return n, true, nil
		}
	}
	return "", false, nil
}

type fakeServer struct {
	mu       sync.Mutex
	states   []detector.State
	sessions int
	closed   bool
}

func (f *fakeServer) SetState(s detector.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *fakeServer) SessionObserved() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
}

func (f *fakeServer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeStatusClient struct {
	report  status.Report
	updates []status.Report
	err     error
	closed  bool
}

func (f *fakeStatusClient) Report(context.Context) (status.Report, error) {
	return f.report, f.err
}

func (f *fakeStatusClient) Watch(_ context.Context, fn func(status.Report)) error {
	for _, u := range f.updates {
		fn(u)
	}
	return f.err
}

func (f *fakeStatusClient) Close() error {
	f.closed = true
	return nil
}

type stubs struct {
	cfg        config.Config
	collector  *fakeCollector
	table      *fakeTable
	server     *fakeServer
	client     *fakeStatusClient
	running    bool
	stopCalls  []bool
	stopResult bool
	stopErr    error
}

// stubDeps swaps every external effect of the facade for an in-memory fake.
func stubDeps(t *testing.T) *stubs {
	t.Helper()
	resetDeps()
	t.Cleanup(resetDeps)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.ArchiveDestination = filepath.Join(dir, "bootchart.tgz")
	cfg.HeaderPath = filepath.Join(dir, "header")
	cfg.RuntimeDir = filepath.Join(dir, "run")
	cfg.RendererPath = filepath.Join(dir, "no-renderer")
	cfg.WaitSet = []string{"session-x"}
	t.Setenv("TMPDIR", t.TempDir())

	s := &stubs{
		cfg:       cfg,
		collector: &fakeCollector{handle: collector.Handle{PID: 321, SampleHz: "50", Mode: collector.ModeBackground}},
		table:     &fakeTable{session: "session-x"},
		server:    &fakeServer{},
		client:    &fakeStatusClient{},
	}

	loadConfig = func(config.Options) (config.Config, error) { return s.cfg, nil }
	newCollector = func(config.Config, zerolog.Logger) collectorManager { return s.collector }
	newProcessTable = func() detector.ProcessTable { return s.table }
	readKernelLog = func() ([]byte, error) { return []byte("kernel\n"), nil }
	detectorIsRunning = func(string) bool { return s.running }
	detectorPID = func(string) (int, error) { return 999, nil }
	stopDetector = func(_ string, force bool) (bool, error) {
		s.stopCalls = append(s.stopCalls, force)
		return s.stopResult, s.stopErr
	}
	listenStatus = func(string, zerolog.Logger) (statusServer, error) { return s.server, nil }
	dialStatus = func(context.Context, string) (statusClient, error) { return s.client, nil }
	detectorTimings = detector.Options{
		ProcFSInterval:  time.Millisecond,
		SessionInterval: time.Millisecond,
		SettleDelay:     time.Millisecond,
	}
	return s
}

func newTestApp(t *testing.T, s *stubs) *App {
	t.Helper()
	a := New(Options{LogOutput: &bytes.Buffer{}})
	require.Equal(t, s.cfg.ArchiveDestination, a.Config().ArchiveDestination)
	return a
}
