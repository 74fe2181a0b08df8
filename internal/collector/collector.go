// Package collector starts, registers and drains the external sampling
// collector.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bootchartd/internal/proctable"
)

// Mode records how a collector was launched.
type Mode string

const (
	ModeBackground Mode = "background"
	ModeInit       Mode = "init"
)

var (
	// ErrAlreadyRunning means a live collector exists; starting is a no-op.
	ErrAlreadyRunning = errors.New("collector already running")
	// ErrLaunch wraps failures to spawn the collector binary.
	ErrLaunch = errors.New("failed to launch collector")
	// ErrDumpFailed wraps a failing --dump invocation.
	ErrDumpFailed = errors.New("collector dump failed")
)

// Handle identifies a running collector.
type Handle struct {
	PID       int
	SampleHz  string
	Mode      Mode
	StartedAt time.Time
}

// Finder discovers processes by name.
type Finder interface {
	Find(ctx context.Context, name string) ([]int, error)
}

// Options configures a Manager.
type Options struct {
	// Path is the collector binary.
	Path string
	// RuntimeDir holds the lock record.
	RuntimeDir string
	// HeaderPath receives the profile header line.
	HeaderPath string
	Finder     Finder
	Logger     zerolog.Logger
}

// Manager owns the collector lifecycle.
type Manager struct {
	path       string
	headerPath string
	lock       *Lock
	finder     Finder
	log        zerolog.Logger
}

// Process seams; tests replace them.
var (
	startProcess  = func(cmd *exec.Cmd) error { return cmd.Start() }
	runProcess    = func(cmd *exec.Cmd) error { return cmd.Run() }
	processAlive  = proctable.Alive
	signalProcess = func(pid int, sig syscall.Signal) error { return syscall.Kill(pid, sig) }
)

// New builds a Manager.
func New(opts Options) *Manager {
	finder := opts.Finder
	if finder == nil {
		finder = proctable.New()
	}
	return &Manager{
		path:       opts.Path,
		headerPath: opts.HeaderPath,
		lock:       NewLock(opts.RuntimeDir, func(pid int) bool { return processAlive(pid) }),
		finder:     finder,
		log:        opts.Logger,
	}
}

// Name is the process name the collector is discoverable by.
func (m *Manager) Name() string {
	return filepath.Base(m.path)
}

// Lock exposes the lock record (status reporting).
func (m *Manager) Lock() *Lock {
	return m.lock
}

// Running returns the live collector, consulting the lock record first and
// the process table second.
func (m *Manager) Running(ctx context.Context) (Handle, bool) {
	if rec, ok := m.lock.Live(); ok {
		return handleFromRecord(rec), true
	}
	pids, err := m.finder.Find(ctx, m.Name())
	if err != nil || len(pids) == 0 {
		return Handle{}, false
	}
	return Handle{PID: pids[0]}, true
}

// StartBackground launches `collector -r <hz>` in its own session and returns
// without waiting. If a collector is already running it returns that handle
// and ErrAlreadyRunning.
func (m *Manager) StartBackground(ctx context.Context, sampleHz string) (Handle, error) {
	cmd := exec.Command(m.path, "-r", sampleHz)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return m.launch(ctx, cmd, sampleHz, ModeBackground, true)
}

// StartInit launches `collector <hz>` as a direct child of PID 1, in the same
// session, so it stays in the init process tree after the exec of the real
// init. The lock is recorded when the runtime dir is writable.
func (m *Manager) StartInit(ctx context.Context, sampleHz string) (Handle, error) {
	cmd := exec.Command(m.path, sampleHz)
	return m.launch(ctx, cmd, sampleHz, ModeInit, false)
}

func (m *Manager) launch(ctx context.Context, cmd *exec.Cmd, sampleHz string, mode Mode, requireLock bool) (Handle, error) {
	log := m.log.With().Str("mode", string(mode)).Str("sample_hz", sampleHz).Logger()

	if pids, err := m.finder.Find(ctx, m.Name()); err == nil && len(pids) > 0 {
		log.Info().Int("pid", pids[0]).Msg("collector already running")
		return Handle{PID: pids[0], SampleHz: sampleHz}, ErrAlreadyRunning
	}

	locked := true
	rec, err := m.lock.Acquire(os.Getpid())
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		log.Info().Int("pid", rec.CollectorPID).Int("owner", rec.OwnerPID).Msg("collector lock held")
		return handleFromRecord(rec), ErrAlreadyRunning
	case err != nil && requireLock:
		return Handle{}, fmt.Errorf("acquire collector lock: %w", err)
	case err != nil:
		log.Warn().Err(err).Str("lock", m.lock.Path()).Msg("collector lock unavailable, relying on name lookup")
		locked = false
	}

	if err := startProcess(cmd); err != nil {
		if locked {
			_ = m.lock.Release()
		}
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrLaunch, m.path, err)
	}

	h := Handle{
		PID:       cmd.Process.Pid,
		SampleHz:  sampleHz,
		Mode:      mode,
		StartedAt: time.Now(),
	}
	if locked {
		rec.CollectorPID = h.PID
		rec.SampleHz = sampleHz
		rec.Mode = mode
		rec.StartedUnix = h.StartedAt.Unix()
		if err := m.lock.Commit(rec); err != nil {
			log.Warn().Err(err).Msg("failed to record collector pid")
		}
	}
	if mode == ModeBackground {
		_ = cmd.Process.Release()
	}
	log.Info().Int("pid", h.PID).Msg("collector started")
	return h, nil
}

// StopFunc runs the extraction pipeline.
type StopFunc func(ctx context.Context) error

// Profile samples a single command: it starts the collector, writes the
// profile header, runs the command to completion and then calls stop. The
// command's own exit status does not affect extraction.
func (m *Manager) Profile(ctx context.Context, sampleHz string, command string, args []string, stop StopFunc) error {
	if _, err := m.StartBackground(ctx, sampleHz); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return err
	}
	if err := m.WriteHeader(command); err != nil {
		return fmt.Errorf("write profile header: %w", err)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := runProcess(cmd); err != nil {
		m.log.Warn().Err(err).Str("command", command).Msg("profiled command failed")
	} else {
		m.log.Info().Str("command", command).Msg("profiled command finished")
	}
	return stop(ctx)
}

// WriteHeader replaces the header file with the single profile line.
func (m *Manager) WriteHeader(command string) error {
	line := fmt.Sprintf("profile.process = %s\n", filepath.Base(command))
	return os.WriteFile(m.headerPath, []byte(line), 0o644)
}

// Dump asks the running collector to flush its buffers into dir.
func (m *Manager) Dump(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, m.path, "--dump", dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrDumpFailed, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Release ends the collector after its buffers have been dumped and clears
// the lock, so the next start launches a fresh one. A collector started
// during boot may have no lock record; it is then found by name.
func (m *Manager) Release(ctx context.Context) error {
	var pids []int
	if rec, ok := m.lock.Live(); ok {
		pids = []int{rec.CollectorPID}
	} else if found, err := m.finder.Find(ctx, m.Name()); err == nil {
		for _, pid := range found {
			if pid != os.Getpid() {
				pids = append(pids, pid)
			}
		}
	} else {
		m.log.Debug().Err(err).Msg("collector lookup failed")
	}

	for _, pid := range pids {
		if err := signalProcess(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("terminate collector %d: %w", pid, err)
		}
		m.log.Debug().Int("pid", pid).Msg("collector terminated")
	}
	return m.lock.Release()
}

func handleFromRecord(rec Record) Handle {
	return Handle{
		PID:       rec.CollectorPID,
		SampleHz:  rec.SampleHz,
		Mode:      rec.Mode,
		StartedAt: time.Unix(rec.StartedUnix, 0),
	}
}
