// Package config loads and validates the sitepipe configuration.
//
// Load reads a YAML (or TOML, by extension) file, expands ${VAR}
// references from the environment and .env files, normalizes enum values,
// fills defaults and validates the result. The returned *Config is never
// mutated afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "sitepipe.yaml"

// Config is the complete, validated configuration.
type Config struct {
	Version string `yaml:"version" toml:"version"`
	Source  string `yaml:"source" toml:"source"`
	Dest    string `yaml:"dest" toml:"dest"`

	Pages   PagesConfig   `yaml:"pages" toml:"pages"`
	Styles  StylesConfig  `yaml:"styles" toml:"styles"`
	Scripts ScriptsConfig `yaml:"scripts" toml:"scripts"`
	Images  ImagesConfig  `yaml:"images" toml:"images"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	State   StateConfig   `yaml:"state" toml:"state"`

	// baseDir anchors relative paths; it is the config file's directory.
	baseDir string
}

// CategoryConfig selects a category's sources and where its outputs go.
// Patterns are relative to Config.Source; Dest is relative to Config.Dest.
type CategoryConfig struct {
	Src     []string `yaml:"src" toml:"src"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
	Dest    string   `yaml:"dest" toml:"dest"`
}

type PagesConfig struct {
	CategoryConfig `yaml:",inline"`
	// Layout names a partial that wraps rendered Markdown pages.
	Layout string         `yaml:"layout" toml:"layout"`
	Data   map[string]any `yaml:"data" toml:"data"`
	Minify bool           `yaml:"minify" toml:"minify"`
}

type StylesConfig struct {
	CategoryConfig `yaml:",inline"`
	SourceMaps     bool         `yaml:"source_maps" toml:"source_maps"`
	OutputStyle    OutputStyle  `yaml:"output_style" toml:"output_style"`
	Prefix         PrefixConfig `yaml:"prefix" toml:"prefix"`
	FlexbugsFixes  bool         `yaml:"flexbugs_fixes" toml:"flexbugs_fixes"`
	Minify         bool         `yaml:"minify" toml:"minify"`
	// SassBinary is the dart-sass executable speaking the embedded protocol.
	SassBinary   string   `yaml:"sass_binary" toml:"sass_binary"`
	IncludePaths []string `yaml:"include_paths" toml:"include_paths"`
}

// PrefixConfig controls vendor prefixing of compiled CSS.
type PrefixConfig struct {
	// Targets are browser versions such as "chrome109" or "safari15.6".
	Targets []string `yaml:"targets" toml:"targets"`
	// Grid adds -ms- grid display fallbacks.
	Grid bool `yaml:"grid" toml:"grid"`
}

type ScriptsConfig struct {
	CategoryConfig `yaml:",inline"`
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	Target         string `yaml:"target" toml:"target"`
	SourceMaps     bool   `yaml:"source_maps" toml:"source_maps"`
	Minify         bool   `yaml:"minify" toml:"minify"`
}

type ImagesConfig struct {
	CategoryConfig `yaml:",inline"`
	PNG            PNGConfig  `yaml:"png" toml:"png"`
	JPEG           JPEGConfig `yaml:"jpeg" toml:"jpeg"`
	SVG            SVGConfig  `yaml:"svg" toml:"svg"`
}

type PNGConfig struct {
	Colors int  `yaml:"colors" toml:"colors"`
	Dither bool `yaml:"dither" toml:"dither"`
	// Quality is the accepted [min, max] range; the palette size scales with max.
	Quality []int `yaml:"quality" toml:"quality"`
}

type JPEGConfig struct {
	Quality int `yaml:"quality" toml:"quality"`
}

type SVGConfig struct {
	Precision int `yaml:"precision" toml:"precision"`
}

type ServerConfig struct {
	Host       string   `yaml:"host" toml:"host"`
	Port       int      `yaml:"port" toml:"port"`
	Open       OpenMode `yaml:"open" toml:"open"`
	LiveReload bool     `yaml:"livereload" toml:"livereload"`
}

type WatchConfig struct {
	Images       bool   `yaml:"images" toml:"images"`
	QuietWindow  string `yaml:"quiet_window" toml:"quiet_window"`
	MaxDelay     string `yaml:"max_delay" toml:"max_delay"`
	PollInterval string `yaml:"poll_interval" toml:"poll_interval"`

	quiet    time.Duration
	maxDelay time.Duration
	poll     time.Duration
}

func (w WatchConfig) QuietWindowDuration() time.Duration  { return w.quiet }
func (w WatchConfig) MaxDelayDuration() time.Duration     { return w.maxDelay }
func (w WatchConfig) PollIntervalDuration() time.Duration { return w.poll }

type NotifyConfig struct {
	Desktop bool `yaml:"desktop" toml:"desktop"`
	Overlay bool `yaml:"overlay" toml:"overlay"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" toml:"level"`
	Format LogFormat `yaml:"format" toml:"format"`
}

type StateConfig struct {
	Path     string `yaml:"path" toml:"path"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

// Load reads path, or returns the defaults when path is empty and
// DefaultPath does not exist in the working directory.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := loadEnvFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
		return finalize(Default(), ".")
	case os.IsNotExist(err):
		return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
	case err != nil:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration file").WithContext("path", path).Build()
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse configuration file").WithContext("path", path).Build()
	}
	return finalize(cfg, filepath.Dir(path))
}

// Format is the on-disk syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes data on top of Default() after environment expansion.
// Keys absent from data keep their default value.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	expanded := []byte(os.ExpandEnv(string(data)))
	var err error
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(expanded))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		if err = dec.Decode(cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromDefaults returns the validated built-in configuration rooted at baseDir.
func FromDefaults(baseDir string) (*Config, error) {
	return finalize(Default(), baseDir)
}

func finalize(cfg *Config, baseDir string) (*Config, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve configuration directory").Build()
	}
	cfg.baseDir = abs
	if err := normalize(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env and .env.local next to the configuration file.
// Existing variables win; missing files are ignored, malformed ones are not.
func loadEnvFiles(dir string) error {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "load env file").WithContext("path", p).Build()
		}
	}
	return nil
}

// Init writes an example configuration to path. An existing file is only
// replaced when force is set.
func Init(path string, force bool) error {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Default()
	example.Styles.SourceMaps = true
	example.Styles.Prefix.Grid = true
	example.Pages.Data = map[string]any{"site_name": "My Site"}

	var data []byte
	var err error
	if formatFor(path) == FormatTOML {
		data, err = toml.Marshal(example)
	} else {
		data, err = yaml.Marshal(example)
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal example configuration").Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create configuration directory").Build()
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write configuration file").WithContext("path", path).Build()
	}
	return nil
}

// BaseDir is the directory relative paths are resolved against.
func (c *Config) BaseDir() string { return c.baseDir }

// SourceRoot is the absolute source directory.
func (c *Config) SourceRoot() string { return c.resolve(c.Source) }

// DestRoot is the absolute destination directory.
func (c *Config) DestRoot() string { return c.resolve(c.Dest) }

// StatePath is the absolute path of the state database.
func (c *Config) StatePath() string { return c.resolve(c.State.Path) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.baseDir, p)
}

func (c *Config) String() string {
	return fmt.Sprintf("config{source=%s dest=%s}", c.SourceRoot(), c.DestRoot())
}
