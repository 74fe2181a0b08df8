package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = "collector.lock"

// Record is the registered collector, persisted as JSON in the lock file.
type Record struct {
	// OwnerPID is the orchestrator that took the lock.
	OwnerPID int `json:"owner_pid"`
	// CollectorPID is zero until the collector has been launched.
	CollectorPID int    `json:"collector_pid"`
	SampleHz     string `json:"sample_hz"`
	Mode         Mode   `json:"mode"`
	StartedUnix  int64  `json:"started_unix"`
}

// Pending reports whether the owner has not yet recorded a collector.
func (r Record) Pending() bool {
	return r.CollectorPID == 0
}

// Lock serializes collector starts through an O_EXCL file whose content
// names the live collector. A record whose processes are gone is stale and
// gets replaced.
type Lock struct {
	path  string
	alive func(int) bool
}

// NewLock returns the lock kept in runtimeDir.
func NewLock(runtimeDir string, alive func(int) bool) *Lock {
	return &Lock{path: filepath.Join(runtimeDir, lockFileName), alive: alive}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock for owner. When a live collector already holds it,
// the existing record is returned with ErrAlreadyRunning.
func (l *Lock) Acquire(owner int) (Record, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Record{}, err
	}
	rec := Record{OwnerPID: owner, StartedUnix: time.Now().Unix()}

	// One retry: the first failure may be a stale record we just removed.
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			werr := json.NewEncoder(f).Encode(rec)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return Record{}, errors.Join(werr, cerr)
			}
			return rec, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return Record{}, err
		}

		existing, rerr := l.Read()
		if rerr == nil && l.held(existing) {
			return existing, ErrAlreadyRunning
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return Record{}, fmt.Errorf("lock %s contended", l.path)
}

func (l *Lock) held(rec Record) bool {
	if rec.Pending() {
		return l.alive(rec.OwnerPID)
	}
	return l.alive(rec.CollectorPID)
}

// Commit replaces the record atomically.
func (l *Lock) Commit(rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Read returns the stored record.
func (l *Lock) Read() (Record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", l.path, err)
	}
	return rec, nil
}

// Live returns the record when it names a running collector.
func (l *Lock) Live() (Record, bool) {
	rec, err := l.Read()
	if err != nil || rec.Pending() || !l.alive(rec.CollectorPID) {
		return Record{}, false
	}
	return rec, true
}

// Release removes the lock file if present.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
