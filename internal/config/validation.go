package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/glob"
)

var (
	browserTarget = regexp.MustCompile(`^(chrome|edge|firefox|safari|ios|opera|ie)[0-9]+(\.[0-9]+)*$`)
	scriptTarget  = regexp.MustCompile(`^(es5|es20[0-9]{2}|esnext)$`)
)

func validate(cfg *Config) error {
	checks := []func(*Config) error{
		validatePaths,
		validateCategories,
		validateStyles,
		validateScripts,
		validateImages,
		validateServer,
		validateWatch,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func configErr(key, format string, args ...any) error {
	return ferrors.ConfigError(fmt.Sprintf(format, args...)).WithContext("key", key).Build()
}

func validatePaths(cfg *Config) error {
	src, dest := cfg.SourceRoot(), cfg.DestRoot()
	if src == dest {
		return configErr("dest", "destination %s must differ from the source directory", dest)
	}
	if within(dest, src) {
		return configErr("dest", "destination %s must not be inside the source directory %s", dest, src)
	}
	if within(src, dest) {
		return configErr("source", "source %s must not be inside the destination directory %s", src, dest)
	}
	return nil
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func validateCategories(cfg *Config) error {
	for _, named := range cfg.categoryConfigs() {
		if !named.enabled {
			continue
		}
		if len(named.cfg.Src) == 0 {
			return configErr(named.key+".src", "%s needs at least one source pattern", named.key)
		}
		if _, err := glob.New(cfg.SourceRoot(), named.cfg.Src, named.cfg.Exclude); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid "+named.key+" pattern").
				WithContext("key", named.key+".src").
				Build()
		}
		if strings.HasPrefix(named.cfg.Dest, "..") || filepath.IsAbs(named.cfg.Dest) {
			return configErr(named.key+".dest", "%s destination must stay inside %s", named.key, cfg.Dest)
		}
	}
	return nil
}

func validateStyles(cfg *Config) error {
	for _, t := range cfg.Styles.Prefix.Targets {
		if !browserTarget.MatchString(t) {
			return configErr("styles.prefix.targets", "unsupported browser target %q (expected e.g. chrome120, safari17.2)", t)
		}
	}
	return nil
}

func validateScripts(cfg *Config) error {
	if cfg.Scripts.Enabled && !scriptTarget.MatchString(cfg.Scripts.Target) {
		return configErr("scripts.target", "unsupported script target %q (expected es5, es2015..es2024 or esnext)", cfg.Scripts.Target)
	}
	return nil
}

func validateImages(cfg *Config) error {
	png := cfg.Images.PNG
	if png.Colors < 2 || png.Colors > 256 {
		return configErr("images.png.colors", "palette size must be between 2 and 256, got %d", png.Colors)
	}
	if len(png.Quality) != 2 || png.Quality[0] < 0 || png.Quality[1] > 100 || png.Quality[0] > png.Quality[1] {
		return configErr("images.png.quality", "quality must be a [min, max] range within 0..100, got %v", png.Quality)
	}
	if q := cfg.Images.JPEG.Quality; q < 1 || q > 100 {
		return configErr("images.jpeg.quality", "quality must be between 1 and 100, got %d", q)
	}
	if p := cfg.Images.SVG.Precision; p < 0 || p > 10 {
		return configErr("images.svg.precision", "precision must be between 0 and 10, got %d", p)
	}
	return nil
}

func validateServer(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return configErr("server.port", "port must be between 0 and 65535, got %d", cfg.Server.Port)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	w := cfg.Watch
	if w.quiet < 0 || w.maxDelay < 0 || w.poll < 0 {
		return configErr("watch", "durations must not be negative")
	}
	if w.quiet > w.maxDelay {
		return configErr("watch.max_delay", "max delay %s must not be shorter than the quiet window %s", w.maxDelay, w.quiet)
	}
	return nil
}
