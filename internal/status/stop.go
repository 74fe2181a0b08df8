package status

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"bootchartd/internal/proctable"
)

// Seams replaced in tests.
var (
	signalProcess = func(pid int, sig syscall.Signal) error { return syscall.Kill(pid, sig) }
	processAlive  = proctable.Alive
	termTimeout   = 3 * time.Second
	killTimeout   = 2 * time.Second
	pollInterval  = 100 * time.Millisecond
)

// StopDetector terminates a waiting detector so it never archives after a
// manual stop. It reports whether a detector was signalled. With force, a
// detector that ignores SIGTERM is killed.
func StopDetector(runtimeDir string, force bool) (bool, error) {
	pid, err := RunningPID(runtimeDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if IsRunning(runtimeDir) {
				return false, fmt.Errorf("detector is running but PID file %q is missing; stop it manually", PIDPath(runtimeDir))
			}
			return false, nil
		}
		return false, fmt.Errorf("unable to read detector PID: %w", err)
	}
	if pid == os.Getpid() {
		return false, errors.New("refusing to stop current process")
	}
	if !processAlive(pid) {
		_ = RemovePID(runtimeDir)
		return false, nil
	}

	if err := sendSignal(runtimeDir, pid, syscall.SIGTERM); err != nil {
		return false, err
	}
	if waitForShutdown(runtimeDir, pid, termTimeout) {
		return true, nil
	}
	if !force {
		return true, fmt.Errorf("detector process %d did not exit after SIGTERM", pid)
	}
	if err := sendSignal(runtimeDir, pid, syscall.SIGKILL); err != nil {
		return true, err
	}
	if waitForShutdown(runtimeDir, pid, killTimeout) {
		return true, nil
	}
	return true, fmt.Errorf("detector process %d did not exit after SIGKILL", pid)
}

func sendSignal(runtimeDir string, pid int, sig syscall.Signal) error {
	if err := signalProcess(pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			_ = RemovePID(runtimeDir)
			return nil
		}
		return err
	}
	return nil
}

func waitForShutdown(runtimeDir string, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !processAlive(pid) {
			_ = RemovePID(runtimeDir)
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
