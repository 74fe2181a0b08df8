package boot

import (
	"path/filepath"
	"strings"
)

const (
	// DefaultInit is exec'd when nothing overrides it.
	DefaultInit = "/sbin/init"
	// InstalledPath is where the orchestrator lives when used as init.
	InstalledPath = "/sbin/bootchartd"

	// ParamBootchartInit names the init to hand over to, both as a kernel
	// parameter and as the environment variable the kernel exports for it.
	ParamBootchartInit = "bootchart_init"
	paramInit          = "init"
)

// Source tells where an ExecTarget came from, lowest precedence first.
type Source int

const (
	SourceDefault Source = iota
	SourceInitrd
	SourceEnvironment
	SourceInitParam
	SourceBootchartInitParam
)

func (s Source) String() string {
	switch s {
	case SourceInitrd:
		return "initrd"
	case SourceEnvironment:
		return "environment"
	case SourceInitParam:
		return "init="
	case SourceBootchartInitParam:
		return "bootchart_init="
	default:
		return "default"
	}
}

// ExecTarget is the program that replaces the orchestrator.
type ExecTarget struct {
	Path   string
	Args   []string
	Source Source
}

// ResolveExecTarget applies the override chain: default, then the initrd's
// init, then the bootchart_init environment variable, then bootchart_init= and
// init= in args where the last match wins. An init= that names one of self is
// skipped; bootchart_init= is taken as given. Args carries the original
// parameters behind the target path.
func ResolveExecTarget(args []string, getenv func(string) string, initrdInit string, self []string) ExecTarget {
	t := ExecTarget{Path: DefaultInit, Source: SourceDefault}
	if initrdInit != "" {
		t.Path, t.Source = initrdInit, SourceInitrd
	}
	if getenv != nil {
		if v := getenv(ParamBootchartInit); v != "" {
			t.Path, t.Source = v, SourceEnvironment
		}
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case ParamBootchartInit:
			t.Path, t.Source = value, SourceBootchartInitParam
		case paramInit:
			if isSelf(value, self) {
				continue
			}
			t.Path, t.Source = value, SourceInitParam
		}
	}

	t.Args = append([]string{t.Path}, args...)
	return t
}

func isSelf(path string, self []string) bool {
	clean := filepath.Clean(path)
	for _, s := range self {
		if s != "" && filepath.Clean(s) == clean {
			return true
		}
	}
	return false
}
