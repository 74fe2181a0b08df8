package collector

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	pids []int
	err  error
}

func (f *fakeFinder) Find(context.Context, string) ([]int, error) { return f.pids, f.err }

type launches struct {
	cmds []*exec.Cmd
}

// stubProcesses replaces the process seams. Launched commands are attached to
// the test process itself so they look alive without spawning anything.
func stubProcesses(t *testing.T, startErr error) *launches {
	t.Helper()
	l := &launches{}
	origStart, origRun, origAlive, origSignal := startProcess, runProcess, processAlive, signalProcess
	startProcess = func(cmd *exec.Cmd) error {
		if startErr != nil {
			return startErr
		}
		p, err := os.FindProcess(os.Getpid())
		if err != nil {
			return err
		}
		cmd.Process = p
		l.cmds = append(l.cmds, cmd)
		return nil
	}
	runProcess = func(cmd *exec.Cmd) error { return nil }
	processAlive = func(pid int) bool { return pid == os.Getpid() }
	signalProcess = func(int, syscall.Signal) error { return nil }
	t.Cleanup(func() {
		startProcess, runProcess, processAlive, signalProcess = origStart, origRun, origAlive, origSignal
	})
	return l
}

func newTestManager(t *testing.T, finder Finder) *Manager {
	t.Helper()
	dir := t.TempDir()
	if finder == nil {
		finder = &fakeFinder{}
	}
	return New(Options{
		Path:       "/lib/bootchart/bootchart-collector",
		RuntimeDir: filepath.Join(dir, "run"),
		HeaderPath: filepath.Join(dir, "header"),
		Finder:     finder,
		Logger:     zerolog.Nop(),
	})
}

// writeScript creates an executable shell script acting as a collaborator.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "bootchart-collector")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}
