package boot

import (
	"os"
	"strings"
)

const (
	// OldPathEnv keeps the caller's PATH while the narrowed one is active.
	OldPathEnv = "BOOTCHARTD_OLDPATH"
)

// ToolPath lists the directories searched for collaborators during boot.
var ToolPath = []string{"/lib/bootchart", "/sbin", "/bin", "/usr/sbin", "/usr/bin"}

// NarrowPath restricts PATH to ToolPath and saves the original in
// OldPathEnv. A second call keeps the first saved value.
func NarrowPath() error {
	if _, saved := os.LookupEnv(OldPathEnv); !saved {
		if err := os.Setenv(OldPathEnv, os.Getenv("PATH")); err != nil {
			return err
		}
	}
	return os.Setenv("PATH", strings.Join(ToolPath, ":"))
}

// RestorePath undoes NarrowPath. It is a no-op when nothing was saved.
func RestorePath() error {
	old, saved := os.LookupEnv(OldPathEnv)
	if !saved {
		return nil
	}
	if err := os.Setenv("PATH", old); err != nil {
		return err
	}
	return os.Unsetenv(OldPathEnv)
}
