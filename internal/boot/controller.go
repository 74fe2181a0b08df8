package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"bootchartd/internal/collector"
	"bootchartd/internal/logging"
)

// SettleDelay gives the collector a head start before the real init runs.
const SettleDelay = 250 * time.Millisecond

var (
	// ErrNotInit is returned when Run is invoked outside PID 1.
	ErrNotInit = errors.New("not running as init")
	// ErrExec means the real init could not be exec'd; boot cannot continue.
	ErrExec = errors.New("failed to exec init")
)

// CollectorStarter is the collector operation used during boot.
type CollectorStarter interface {
	StartInit(ctx context.Context, sampleHz string) (collector.Handle, error)
}

// Options configures a Controller.
type Options struct {
	Identity  Identity
	SampleHz  string
	Collector CollectorStarter
	// Args are the parameters the kernel passed, without argv[0].
	Args []string
	// Self is the orchestrator binary re-run as the detector child.
	Self string
	// SelfPaths are names under which init= refers back to the orchestrator.
	SelfPaths []string
	Logger    zerolog.Logger
}

// Controller performs the single init substitution pass.
type Controller struct {
	opts Options
	log  zerolog.Logger
}

// Seams replaced in tests.
var (
	execve        = unix.Exec
	sleep         = time.Sleep
	executable    = isExecutable
	kmsg          = logging.Kmsg
	spawnDetector = func(self string) error {
		cmd := exec.Command(self, "wait", "--as-init")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			return err
		}
		return cmd.Process.Release()
	}
)

// NewController builds a Controller.
func NewController(opts Options) *Controller {
	return &Controller{opts: opts, log: opts.Logger}
}

// Run starts the background workers for the detected mode and execs the real
// init. On success the process image is replaced and Run never returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.opts.Identity.IsInit {
		return ErrNotInit
	}
	if err := NarrowPath(); err != nil {
		c.log.Warn().Err(err).Msg("failed to narrow PATH")
	}

	mode, initrdInit := DetectMode(c.opts.Identity, InitrdMarkers, executable)
	target := ResolveExecTarget(c.opts.Args, os.Getenv, initrdInit, c.opts.SelfPaths)
	log := c.log.With().Str("mode", mode.String()).Str("init", target.Path).Str("source", target.Source.String()).Logger()
	log.Info().Msg("taking over boot")

	switch mode {
	case ModeInitrd:
		c.startCollector(ctx, log)
	case ModeFullSystem:
		var g errgroup.Group
		g.Go(func() error {
			c.startCollector(ctx, log)
			return nil
		})
		g.Go(func() error {
			if err := spawnDetector(c.opts.Self); err != nil {
				log.Error().Err(err).Msg("failed to start boot completion detector")
				return err
			}
			return nil
		})
		_ = g.Wait()
		sleep(SettleDelay)
	}

	return c.exec(log, target)
}

func (c *Controller) startCollector(ctx context.Context, log zerolog.Logger) {
	h, err := c.opts.Collector.StartInit(ctx, c.opts.SampleHz)
	switch {
	case errors.Is(err, collector.ErrAlreadyRunning):
		log.Info().Int("pid", h.PID).Msg("collector already running")
	case err != nil:
		log.Error().Err(err).Msg("collector did not start, booting without profiling")
	default:
		log.Info().Int("pid", h.PID).Str("sample_hz", h.SampleHz).Msg("collector started")
	}
}

func (c *Controller) exec(log zerolog.Logger, target ExecTarget) error {
	if err := RestorePath(); err != nil {
		log.Warn().Err(err).Msg("failed to restore PATH")
	}
	err := execve(target.Path, target.Args, os.Environ())
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%w %s: %v", ErrExec, target.Path, err)
	log.Error().Err(err).Msg("cannot hand over to init")
	if kerr := kmsg("%v", err); kerr != nil {
		log.Debug().Err(kerr).Msg("kernel log unavailable")
	}
	return err
}
