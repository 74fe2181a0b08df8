// Package status publishes the boot-completion detector's progress over the
// gRPC health protocol on a unix socket, and lets other invocations query,
// watch and stop a waiting detector.
package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// SocketBaseName is the detector socket inside the runtime dir.
	SocketBaseName = "detector.sock"
	pidFileName    = "detector.pid"
)

// SocketPath returns the detector socket inside the runtime dir.
func SocketPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, SocketBaseName)
}

// PIDPath returns the detector PID file, next to the socket.
func PIDPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, pidFileName)
}

func ensureDir(runtimeDir string) error {
	return os.MkdirAll(runtimeDir, 0o755)
}

// WritePID records the waiting detector's pid.
func WritePID(runtimeDir string, pid int) error {
	if err := ensureDir(runtimeDir); err != nil {
		return err
	}
	return os.WriteFile(PIDPath(runtimeDir), []byte(fmt.Sprintf("%d\n", pid)), 0o644)
}

// RemovePID removes the PID file if it exists.
func RemovePID(runtimeDir string) error {
	if err := os.Remove(PIDPath(runtimeDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RunningPID returns the pid stored in the PID file.
func RunningPID(runtimeDir string) (int, error) {
	data, err := os.ReadFile(PIDPath(runtimeDir))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
