// Package config reads l4idl.toml, the per-project generator settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"l4idl/internal/target"
	"l4idl/internal/tracehook"
)

// FileName is the name searched for by Find.
const FileName = "l4idl.toml"

const (
	DefaultProfile    = "v2-ia32-abs"
	DefaultMaxNesting = 0 // unbounded declarator paths
	DefaultOutputDir  = "."
	DefaultCacheDir   = ".l4idl-cache"
)

// Config is the decoded file, with defaults filled in.
type Config struct {
	Target  TargetConfig  `toml:"target"`
	Marshal MarshalConfig `toml:"marshal"`
	IPC     IPCConfig     `toml:"ipc"`
	Trace   TraceConfig   `toml:"trace"`
	Output  OutputConfig  `toml:"output"`
}

type TargetConfig struct {
	Profile string `toml:"profile"`
	// Size overrides; zero keeps the profile default.
	MaxDwords        int `toml:"max_dwords"`
	MaxStrings       int `toml:"max_strings"`
	DefaultStringMax int `toml:"default_string_max"`
}

type MarshalConfig struct {
	MaxNesting int    `toml:"max_nesting"`
	Prefix     string `toml:"prefix"`
}

type IPCConfig struct {
	Retry bool `toml:"retry"`
	// Timeout replaces the default timeout expression of client calls.
	Timeout string `toml:"timeout"`
}

type TraceConfig struct {
	Hook   string   `toml:"hook"` // none or printf
	Func   string   `toml:"func"`
	Points []string `toml:"points"`
}

type OutputConfig struct {
	Dir    string `toml:"dir"`
	Client bool   `toml:"client"`
	Server bool   `toml:"server"`
	Header bool   `toml:"header"`
	Cache  string `toml:"cache"` // empty disables the layout cache
}

// Manifest is a located config file.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Default returns the settings used without a config file.
func Default() Config {
	return Config{
		Target:  TargetConfig{Profile: DefaultProfile},
		Marshal: MarshalConfig{MaxNesting: DefaultMaxNesting, Prefix: "_dice_"},
		Trace:   TraceConfig{Hook: "none"},
		Output: OutputConfig{
			Dir:    DefaultOutputDir,
			Client: true,
			Server: true,
			Header: true,
			Cache:  DefaultCacheDir,
		},
	}
}

// Find walks up from startDir looking for l4idl.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover finds and loads the nearest config file. Without one it returns
// the defaults and found=false.
func Discover(startDir string) (*Manifest, bool, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &Manifest{Config: Default()}, false, nil
	}
	m, err := Load(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// Load reads the config file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	return &Manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, nil
}

// Parse decodes data over the defaults. Keys that are absent keep their
// default value; unknown keys are an error.
func Parse(path string, data []byte) (Config, error) {
	cfg := Default()
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("target", "profile") && strings.TrimSpace(cfg.Target.Profile) == "" {
		return Config{}, fmt.Errorf("%s: [target].profile is empty", path)
	}
	if meta.IsDefined("output", "dir") && strings.TrimSpace(cfg.Output.Dir) == "" {
		return Config{}, fmt.Errorf("%s: [output].dir is empty", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that Parse cannot check by type.
func (c Config) Validate() error {
	if _, err := c.TargetModel(); err != nil {
		return err
	}
	if c.Marshal.MaxNesting < 0 {
		return fmt.Errorf("[marshal].max_nesting must not be negative")
	}
	if _, err := c.Hook(); err != nil {
		return err
	}
	return nil
}

// Profile parses [target].profile.
func (c Config) Profile() (target.Profile, error) {
	p, err := target.ParseProfile(c.Target.Profile)
	if err != nil {
		return target.Profile{}, fmt.Errorf("[target].profile: %w", err)
	}
	return p, nil
}

// TargetModel returns the size model with the overrides applied.
func (c Config) TargetModel() (target.Target, error) {
	p, err := c.Profile()
	if err != nil {
		return target.Target{}, err
	}
	t, err := target.New(p)
	if err != nil {
		return target.Target{}, err
	}
	if c.Target.MaxDwords != 0 {
		t.MaxDwords = c.Target.MaxDwords
	}
	if c.Target.MaxStrings != 0 {
		t.MaxStrings = c.Target.MaxStrings
	}
	if c.Target.DefaultStringMax != 0 {
		t.DefaultStringMax = c.Target.DefaultStringMax
	}
	if err := t.Validate(); err != nil {
		return target.Target{}, fmt.Errorf("[target]: %w", err)
	}
	return t, nil
}

// Hook builds the trace hook configured by [trace].
func (c Config) Hook() (tracehook.Hook, error) {
	var h tracehook.Hook
	switch strings.ToLower(strings.TrimSpace(c.Trace.Hook)) {
	case "", "none":
		return tracehook.Nop{}, nil
	case "printf":
		h = tracehook.Printf{Func: c.Trace.Func}
	default:
		return nil, fmt.Errorf("[trace].hook: unknown hook %q (expected: none|printf)", c.Trace.Hook)
	}
	if len(c.Trace.Points) == 0 {
		return h, nil
	}
	points := make([]tracehook.Point, 0, len(c.Trace.Points))
	for _, s := range c.Trace.Points {
		p, err := tracehook.ParsePoint(s)
		if err != nil {
			return nil, fmt.Errorf("[trace].points: %w", err)
		}
		points = append(points, p)
	}
	return tracehook.NewFilter(h, points...), nil
}

// Resolve makes a relative output or cache path absolute against the
// manifest root. Without a manifest file paths stay relative to the
// working directory.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m == nil || m.Root == "" {
		return path
	}
	return filepath.Join(m.Root, filepath.FromSlash(path))
}
