// Package detector decides when boot has finished: it waits for /proc, then
// for a session process from the wait set, then lets a settle delay pass
// before handing over to extraction.
package detector

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the detector's position in its single-shot state machine.
type State int32

const (
	StateWaitingForProcFS State = iota
	StateWaitingForSession
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaitingForProcFS:
		return "WAITING_FOR_PROC_FS"
	case StateWaitingForSession:
		return "WAITING_FOR_SESSION"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultProcFSInterval  = 5 * time.Millisecond
	DefaultSessionInterval = time.Second
	DefaultSettleDelay     = 20 * time.Second
)

// ProcessTable is what the detector polls.
type ProcessTable interface {
	Available() bool
	FindAny(ctx context.Context, names []string) (string, bool, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Detector. Zero intervals take the defaults.
type Options struct {
	Table           ProcessTable
	WaitSet         []string
	ProcFSInterval  time.Duration
	SessionInterval time.Duration
	SettleDelay     time.Duration
	// Sleep replaces the timer-based sleep (tests).
	Sleep SleepFunc
	// Observer is told about every state the detector enters.
	Observer func(State)
	// OnSession is told which wait-set process ended the session wait.
	OnSession func(name string)
	Logger    zerolog.Logger
}

// Detector is single-shot: Run may be called once.
type Detector struct {
	table           ProcessTable
	waitSet         []string
	procFSInterval  time.Duration
	sessionInterval time.Duration
	settle          time.Duration
	sleep           SleepFunc
	observer        func(State)
	onSession       func(string)
	log             zerolog.Logger

	state atomic.Int32
	ran   atomic.Bool
}

// New builds a Detector.
func New(opts Options) *Detector {
	d := &Detector{
		table:           opts.Table,
		waitSet:         append([]string(nil), opts.WaitSet...),
		procFSInterval:  opts.ProcFSInterval,
		sessionInterval: opts.SessionInterval,
		settle:          opts.SettleDelay,
		sleep:           opts.Sleep,
		observer:        opts.Observer,
		onSession:       opts.OnSession,
		log:             opts.Logger,
	}
	if d.procFSInterval <= 0 {
		d.procFSInterval = DefaultProcFSInterval
	}
	if d.sessionInterval <= 0 {
		d.sessionInterval = DefaultSessionInterval
	}
	if d.settle <= 0 {
		d.settle = DefaultSettleDelay
	}
	if d.sleep == nil {
		d.sleep = sleep
	}
	return d
}

// State returns the current state.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// ErrAlreadyRan is returned by a second call to Run.
var ErrAlreadyRan = errors.New("detector already ran")

// Run polls until boot is complete, then calls done exactly once. With an
// empty wait set it stays in WAITING_FOR_SESSION until ctx is cancelled.
// Cancellation returns ctx.Err() and done is not called.
func (d *Detector) Run(ctx context.Context, done func(context.Context) error) error {
	if !d.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}

	d.enter(StateWaitingForProcFS)
	for !d.table.Available() {
		if err := d.sleep(ctx, d.procFSInterval); err != nil {
			return err
		}
	}

	d.enter(StateWaitingForSession)
	if len(d.waitSet) == 0 {
		d.log.Warn().Msg("wait set is empty, boot completion will never be detected")
	}
	for {
		name, found, err := d.table.FindAny(ctx, d.waitSet)
		if err != nil {
			d.log.Debug().Err(err).Msg("process table lookup failed")
		}
		if found {
			d.log.Info().Str("process", name).Dur("settle", d.settle).Msg("session process observed")
			if d.onSession != nil {
				d.onSession(name)
			}
			break
		}
		if err := d.sleep(ctx, d.sessionInterval); err != nil {
			return err
		}
	}

	if err := d.sleep(ctx, d.settle); err != nil {
		return err
	}

	d.enter(StateDone)
	return done(ctx)
}

func (d *Detector) enter(s State) {
	d.state.Store(int32(s))
	d.log.Debug().Str("state", s.String()).Msg("detector state")
	if d.observer != nil {
		d.observer(s)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
