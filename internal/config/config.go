package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is looked up in the working directory before SystemPath.
	FileName = "bootchartd.conf"
	// SystemPath is the system-wide configuration file.
	SystemPath = "/etc/bootchartd.conf"

	defaultSampleHz         = "50"
	defaultArchive          = "/var/log/bootchart.tgz"
	defaultAutoRenderDir    = "/var/log"
	defaultAutoRenderFormat = "png"
	defaultCollectorPath    = "/lib/bootchart/bootchart-collector"
	defaultRendererPath     = "/usr/bin/pybootchartgui"
	defaultRuntimeDir       = "/run/bootchartd"
	defaultHeaderPath       = "header"
	defaultLogLevel         = "info"

	envSampleHz   = "BOOTCHARTD_SAMPLE_HZ"
	envArchive    = "BOOTCHARTD_ARCHIVE"
	envRuntimeDir = "BOOTCHARTD_RUNTIME_DIR"
	envLogLevel   = "BOOTCHARTD_LOG_LEVEL"
)

// DefaultWaitSet lists the session processes that mark the end of boot.
var DefaultWaitSet = []string{
	"gdm-session-worker", "gdmgreeter", "kdm_greet", "lightdm", "sddm-greeter",
	"gnome-session", "gnome-shell", "kwin_x11", "kwin_wayland", "ksmserver",
	"startkde", "xfce4-session", "xfce-mcs-manage", "metacity", "mutter", "compiz",
}

// Config is the resolved, read-only option set. Build it once with Load and
// pass it by value.
type Config struct {
	// SampleHz is forwarded verbatim to the collector.
	SampleHz           string
	ArchiveDestination string
	AutoRender         bool
	AutoRenderDir      string
	AutoRenderFormat   string
	WaitSet            []string
	CustomPostCmd      string
	CollectorPath      string
	RendererPath       string
	RuntimeDir         string
	HeaderPath         string
	MetricsTextfile    string
	LogLevel           string

	// Source is the file the options came from; empty when only defaults apply.
	Source string
}

// Options controls where Load looks for configuration.
type Options struct {
	// Path, when set, is the only file consulted.
	Path string
	// WorkDir overrides the working directory lookup (tests).
	WorkDir string
	// SystemPath overrides SystemPath (tests).
	SystemPath string
}

// ErrNoConfigFile is reported when neither configuration file exists.
var ErrNoConfigFile = errors.New("no configuration file found, using defaults")

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SampleHz:           defaultSampleHz,
		ArchiveDestination: defaultArchive,
		AutoRenderDir:      defaultAutoRenderDir,
		AutoRenderFormat:   defaultAutoRenderFormat,
		WaitSet:            append([]string(nil), DefaultWaitSet...),
		CollectorPath:      defaultCollectorPath,
		RendererPath:       defaultRendererPath,
		RuntimeDir:         defaultRuntimeDir,
		HeaderPath:         defaultHeaderPath,
		LogLevel:           defaultLogLevel,
	}
}

// Load resolves the configuration: an explicit path, else the working
// directory file, else the system file, else defaults. The returned Config is
// always usable; a non-nil error is a diagnostic (ErrNoConfigFile) or a file
// that could not be read or parsed, in which case defaults are returned.
func Load(opts Options) (Config, error) {
	cfg := Default()

	path, err := locate(opts)
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, err
	}

	if err := loadFromFile(path, &cfg); err != nil {
		cfg = Default()
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Source = path

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func locate(opts Options) (string, error) {
	if opts.Path != "" {
		return opts.Path, nil
	}

	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err == nil {
			workDir = wd
		}
	}
	systemPath := opts.SystemPath
	if systemPath == "" {
		systemPath = SystemPath
	}

	candidates := []string{systemPath}
	if workDir != "" {
		candidates = []string{filepath.Join(workDir, FileName), systemPath}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", ErrNoConfigFile
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envSampleHz); v != "" {
		cfg.SampleHz = v
	}
	if v := os.Getenv(envArchive); v != "" {
		cfg.ArchiveDestination = v
	}
	if v := os.Getenv(envRuntimeDir); v != "" {
		cfg.RuntimeDir = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// fileConfig mirrors the YAML file. Pointers distinguish "absent" from zero
// values so a file can turn auto_render off or clear the wait set.
type fileConfig struct {
	SampleHz           *string `yaml:"sample_hz"`
	ArchiveDestination *string `yaml:"archive_destination"`
	AutoRender         *bool   `yaml:"auto_render"`
	AutoRenderDir      *string `yaml:"auto_render_dir"`
	AutoRenderFormat   *string `yaml:"auto_render_format"`
	WaitSet            *string `yaml:"wait_set"`
	CustomPostCmd      *string `yaml:"custom_post_cmd"`
	CollectorPath      *string `yaml:"collector_path"`
	RendererPath       *string `yaml:"renderer_path"`
	RuntimeDir         *string `yaml:"runtime_dir"`
	HeaderPath         *string `yaml:"header_path"`
	MetricsTextfile    *string `yaml:"metrics_textfile"`
	LogLevel           *string `yaml:"log_level"`
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	setString(&cfg.SampleHz, raw.SampleHz)
	setString(&cfg.ArchiveDestination, raw.ArchiveDestination)
	if raw.AutoRender != nil {
		cfg.AutoRender = *raw.AutoRender
	}
	setString(&cfg.AutoRenderDir, raw.AutoRenderDir)
	setString(&cfg.AutoRenderFormat, raw.AutoRenderFormat)
	if raw.WaitSet != nil {
		cfg.WaitSet = strings.Fields(*raw.WaitSet)
	}
	setString(&cfg.CustomPostCmd, raw.CustomPostCmd)
	setString(&cfg.CollectorPath, raw.CollectorPath)
	setString(&cfg.RendererPath, raw.RendererPath)
	setString(&cfg.RuntimeDir, raw.RuntimeDir)
	setString(&cfg.HeaderPath, raw.HeaderPath)
	setString(&cfg.MetricsTextfile, raw.MetricsTextfile)
	setString(&cfg.LogLevel, raw.LogLevel)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
