// Package pipeline runs one extraction cycle: dump the collector into a fresh
// temporary directory, validate, archive, clean up, then render and run the
// post hook on a best-effort basis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bootchartd/internal/archive"
	"bootchartd/internal/config"
	bcerrors "bootchartd/internal/errors"
)

// MarkerLog must be present in every successful dump.
const MarkerLog = "proc_stat.log"

var (
	ErrTempDir   = errors.New("failed to create temporary directory")
	ErrDumpEmpty = errors.New("collector dump produced no " + MarkerLog)
	ErrArchive   = errors.New("failed to write archive")
)

// Collector is the part of the collector manager the pipeline drives.
type Collector interface {
	Dump(ctx context.Context, dir string) error
	Release(ctx context.Context) error
}

// Options configures a Pipeline.
type Options struct {
	Config    config.Config
	IsInit    bool
	Collector Collector
	// KernelLog captures dmesg; defaults to archive.ReadKernelLog.
	KernelLog func() ([]byte, error)
	Logger    zerolog.Logger
}

// Pipeline is safe to Run repeatedly; every run is an independent cycle.
type Pipeline struct {
	cfg       config.Config
	isInit    bool
	collector Collector
	kernelLog func() ([]byte, error)
	log       zerolog.Logger
}

// Result describes a completed cycle.
type Result struct {
	CycleID  string
	Archive  archive.Result
	Rendered string
	// RenderErr and HookErr are reported, never returned.
	RenderErr error
	HookErr   error
	Duration  time.Duration
}

// New builds a Pipeline.
func New(opts Options) *Pipeline {
	kl := opts.KernelLog
	if kl == nil {
		kl = archive.ReadKernelLog
	}
	return &Pipeline{
		cfg:       opts.Config,
		isInit:    opts.IsInit,
		collector: opts.Collector,
		kernelLog: kl,
		log:       opts.Logger,
	}
}

// Run executes one extraction cycle. Any error from the dump, validation or
// archive steps aborts it; the temporary directory is removed in every case.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{CycleID: uuid.NewString()}
	log := p.log.With().Str("cycle", res.CycleID).Logger()

	dir, err := os.MkdirTemp("", "bootchart."+res.CycleID[:8]+".")
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrTempDir, err)
	}
	cleanup := sync.OnceFunc(func() { bcerrors.DeferRemoveAll(log, dir) })
	defer cleanup()

	if err := p.collector.Dump(ctx, dir); err != nil {
		return res, err
	}
	if info, err := os.Stat(filepath.Join(dir, MarkerLog)); err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return res, ErrDumpEmpty
	}

	opts := archive.Options{
		DumpDir:       dir,
		ProfileHeader: p.cfg.HeaderPath,
		IncludeDmesg:  p.isInit,
		Destination:   p.cfg.ArchiveDestination,
	}
	if p.isInit {
		data, err := p.kernelLog()
		if err != nil {
			log.Warn().Err(err).Msg("kernel log unavailable, archiving empty dmesg")
		}
		opts.Dmesg = data
	}
	ar, err := archive.Build(opts)
	cleanup()
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrArchive, p.cfg.ArchiveDestination, err)
	}
	res.Archive = ar
	log.Info().Str("archive", ar.Destination).Int64("bytes", ar.Bytes).Strs("entries", ar.Entries).Msg("archive written")

	if err := p.collector.Release(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to release collector")
	}
	if p.cfg.HeaderPath != "" {
		if err := os.Remove(p.cfg.HeaderPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p.cfg.HeaderPath).Msg("failed to remove profile header")
		}
	}

	res.Rendered, res.RenderErr = p.render(ctx, log, ar.Destination)
	res.HookErr = p.postHook(ctx, log)
	res.Duration = time.Since(start)

	if p.cfg.MetricsTextfile != "" {
		if err := writeMetrics(p.cfg.MetricsTextfile, res, time.Now()); err != nil {
			log.Warn().Err(err).Str("path", p.cfg.MetricsTextfile).Msg("failed to write metrics textfile")
		}
	}
	return res, nil
}

func (p *Pipeline) render(ctx context.Context, log zerolog.Logger, archivePath string) (string, error) {
	if !p.cfg.AutoRender {
		return "", nil
	}
	if !isExecutable(p.cfg.RendererPath) {
		log.Info().Str("renderer", p.cfg.RendererPath).Msg("renderer not installed, skipping")
		return "", nil
	}
	out := filepath.Join(p.cfg.AutoRenderDir, "bootchart."+p.cfg.AutoRenderFormat)
	if err := runCommand(ctx, p.cfg.RendererPath, "-o", out, "-f", p.cfg.AutoRenderFormat, archivePath); err != nil {
		log.Error().Err(err).Str("renderer", p.cfg.RendererPath).Msg("rendering failed")
		return "", err
	}
	log.Info().Str("output", out).Msg("chart rendered")
	return out, nil
}

func (p *Pipeline) postHook(ctx context.Context, log zerolog.Logger) error {
	hook := p.cfg.CustomPostCmd
	if hook == "" {
		return nil
	}
	if !isExecutable(hook) {
		log.Warn().Str("hook", hook).Msg("post hook is not executable, skipping")
		return nil
	}
	if err := runCommand(ctx, hook); err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("post hook failed")
		return err
	}
	return nil
}
