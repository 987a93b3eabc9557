package config

import (
	"log/slog"

	"git.home.luguber.info/inful/sitepipe/internal/foundation/normalization"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// SlogLevel converts the level for slog handlers.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// OpenMode selects which URL, if any, is opened in a browser once the dev
// server is up.
type OpenMode string

const (
	OpenNone     OpenMode = "none"
	OpenLocal    OpenMode = "local"
	OpenExternal OpenMode = "external"
)

var openModeNormalizer = normalization.NewNormalizer(map[string]OpenMode{
	"none":     OpenNone,
	"false":    OpenNone,
	"off":      OpenNone,
	"local":    OpenLocal,
	"true":     OpenLocal,
	"external": OpenExternal,
}, OpenExternal)

// OutputStyle is the Sass output style.
type OutputStyle string

const (
	OutputExpanded   OutputStyle = "expanded"
	OutputCompressed OutputStyle = "compressed"
)

var outputStyleNormalizer = normalization.NewNormalizer(map[string]OutputStyle{
	"expanded":   OutputExpanded,
	"compressed": OutputCompressed,
}, OutputExpanded)
