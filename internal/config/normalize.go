package config

import (
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// normalize canonicalizes enum spellings and parses durations.
func normalize(cfg *Config) error {
	var err error
	if cfg.Logging.Level, err = logLevelNormalizer.NormalizeWithError(string(cfg.Logging.Level)); err != nil {
		return invalid("logging.level", err)
	}
	if cfg.Logging.Format, err = logFormatNormalizer.NormalizeWithError(string(cfg.Logging.Format)); err != nil {
		return invalid("logging.format", err)
	}
	if cfg.Server.Open, err = openModeNormalizer.NormalizeWithError(string(cfg.Server.Open)); err != nil {
		return invalid("server.open", err)
	}
	if cfg.Styles.OutputStyle, err = outputStyleNormalizer.NormalizeWithError(string(cfg.Styles.OutputStyle)); err != nil {
		return invalid("styles.output_style", err)
	}

	cfg.Scripts.Target = strings.ToLower(strings.TrimSpace(cfg.Scripts.Target))
	for i, t := range cfg.Styles.Prefix.Targets {
		cfg.Styles.Prefix.Targets[i] = strings.ToLower(strings.TrimSpace(t))
	}
	for _, cat := range []*CategoryConfig{&cfg.Pages.CategoryConfig, &cfg.Styles.CategoryConfig, &cfg.Scripts.CategoryConfig, &cfg.Images.CategoryConfig} {
		cat.Dest = strings.Trim(strings.ReplaceAll(strings.TrimSpace(cat.Dest), "\\", "/"), "/")
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"watch.quiet_window", cfg.Watch.QuietWindow, &cfg.Watch.quiet},
		{"watch.max_delay", cfg.Watch.MaxDelay, &cfg.Watch.maxDelay},
		{"watch.poll_interval", cfg.Watch.PollInterval, &cfg.Watch.poll},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return invalid(d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func invalid(key string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid "+key).
		WithContext("key", key).
		UserAction().
		Build()
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}
