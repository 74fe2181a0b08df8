// Package proctable answers "is a process with this name running?" the way
// pidof does, on top of gopsutil's /proc reader.
package proctable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// commLen is the kernel's TASK_COMM_LEN minus the trailing NUL.
const commLen = 15

// Entry is the subset of a process the lookups need.
type Entry struct {
	PID   int
	Comm  string
	Argv0 string
}

// Lister enumerates the live process table.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// Table looks processes up by name.
type Table struct {
	lister Lister
	// probe is the file whose presence means /proc is mounted.
	probe string
}

// New returns a Table reading the host's /proc through gopsutil.
func New() *Table {
	return &Table{lister: gopsutilLister{}, probe: "/proc/cmdline"}
}

// NewWithLister returns a Table over an arbitrary process source.
func NewWithLister(l Lister, probe string) *Table {
	return &Table{lister: l, probe: probe}
}

// Available reports whether the process information interface is mounted.
func (t *Table) Available() bool {
	_, err := os.Stat(t.probe)
	return err == nil
}

// Find returns the PIDs of every process matching name, lowest first.
func (t *Table) Find(ctx context.Context, name string) ([]int, error) {
	entries, err := t.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, e := range entries {
		if Matches(e, name) {
			pids = append(pids, e.PID)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

// FindAny returns the first name from names, in order, that has a running
// process. An empty names list never matches.
func (t *Table) FindAny(ctx context.Context, names []string) (string, bool, error) {
	if len(names) == 0 {
		return "", false, nil
	}
	entries, err := t.lister.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, name := range names {
		for _, e := range entries {
			if Matches(e, name) {
				return name, true, nil
			}
		}
	}
	return "", false, nil
}

// Matches reports whether e is a process called name. The comm field is
// truncated by the kernel, so long names also match on their prefix, and
// argv[0]'s basename covers interpreters and renamed binaries.
func Matches(e Entry, name string) bool {
	if name == "" {
		return false
	}
	if e.Comm == name {
		return true
	}
	if len(name) > commLen && len(e.Comm) == commLen && name[:commLen] == e.Comm {
		return true
	}
	return e.Argv0 != "" && filepath.Base(e.Argv0) == name
}

// Alive reports whether pid refers to an existing process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

type gopsutilLister struct{}

func (gopsutilLister) List(ctx context.Context) ([]Entry, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(pids))
	for _, pid := range pids {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			// Exited between listing and inspection.
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		e := Entry{PID: int(pid), Comm: name}
		if argv, err := p.CmdlineSliceWithContext(ctx); err == nil && len(argv) > 0 {
			e.Argv0 = argv[0]
		}
		entries = append(entries, e)
	}
	return entries, nil
}
