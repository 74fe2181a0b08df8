// Package boot implements the init substitution path: detect PID 1, choose
// the boot mode, start the background workers and exec the real init.
package boot

import (
	"os"
)

// Identity records whether this process is the system's init.
type Identity struct {
	IsInit bool
}

var getpid = os.Getpid

// CurrentIdentity inspects the running process once.
func CurrentIdentity() Identity {
	return Identity{IsInit: getpid() == 1}
}

// Mode is the boot path taken.
type Mode int

const (
	ModeManual Mode = iota
	ModeInitrd
	ModeFullSystem
)

func (m Mode) String() string {
	switch m {
	case ModeInitrd:
		return "initrd"
	case ModeFullSystem:
		return "full-system"
	default:
		return "manual"
	}
}

// InitrdMarkers are the init programs an initramfs provides, in probe order.
var InitrdMarkers = []string{"/init", "/linuxrc"}

// DetectMode picks the boot mode. For init it also returns the first
// executable initrd marker, which is empty on a full-system boot.
func DetectMode(id Identity, markers []string, isExecutable func(string) bool) (Mode, string) {
	if !id.IsInit {
		return ModeManual, ""
	}
	for _, m := range markers {
		if isExecutable(m) {
			return ModeInitrd, m
		}
	}
	return ModeFullSystem, ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
