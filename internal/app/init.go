package app

import (
	"context"
	"os"

	"bootchartd/internal/boot"
	"bootchartd/internal/logging"
)

type bootRunner interface {
	Run(ctx context.Context) error
}

var (
	currentIdentity   = boot.CurrentIdentity
	newBootController = func(opts boot.Options) bootRunner { return boot.NewController(opts) }
)

// Init runs the init substitution path. args are the kernel-supplied
// parameters without argv[0]. It only returns when the real init could not
// be exec'd.
func (a *App) Init(ctx context.Context, args []string) error {
	self, err := os.Executable()
	if err != nil {
		self = boot.InstalledPath
	}

	ctrl := newBootController(boot.Options{
		Identity:  currentIdentity(),
		SampleHz:  a.cfg.SampleHz,
		Collector: newCollector(a.cfg, a.log),
		Args:      args,
		Self:      self,
		SelfPaths: []string{boot.InstalledPath, os.Args[0], self},
		Logger:    logging.Component(a.log, "boot"),
	})
	return ctrl.Run(ctx)
}
