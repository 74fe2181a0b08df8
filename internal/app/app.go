package app

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"bootchartd/internal/config"
	"bootchartd/internal/logging"
)

// Options configures the top-level controller.
type Options struct {
	// ConfigPath points to an explicit configuration file.
	ConfigPath string
	// LogLevel overrides the configured level when set.
	LogLevel string
	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// App exposes high-level operations that the CLI/TUI can reuse. The
// configuration is resolved once, in New.
type App struct {
	cfgPath string
	cfg     config.Config
	cfgErr  error
	log     zerolog.Logger
}

// New loads the configuration and builds the shared logger.
func New(opts Options) *App {
	cfg, cfgErr := loadConfig(config.Options{Path: opts.ConfigPath})

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if opts.LogLevel != "" {
		logCfg.Level = opts.LogLevel
	}
	if opts.LogOutput != nil {
		logCfg.Output = opts.LogOutput
		logCfg.Pretty = false
	}
	log := logging.New(logCfg)

	switch {
	case errors.Is(cfgErr, config.ErrNoConfigFile):
		log.Info().Msg(cfgErr.Error())
	case cfgErr != nil:
		log.Warn().Err(cfgErr).Msg("configuration ignored, using defaults")
	default:
		log.Debug().Str("source", cfg.Source).Msg("configuration loaded")
	}

	return &App{
		cfgPath: opts.ConfigPath,
		cfg:     cfg,
		cfgErr:  cfgErr,
		log:     log,
	}
}

// ConfigPath returns the explicit config file path (if any).
func (a *App) ConfigPath() string {
	return a.cfgPath
}

// Config returns the resolved configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// ConfigErr returns the diagnostic produced while loading the configuration.
func (a *App) ConfigErr() error {
	return a.cfgErr
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.log
}
