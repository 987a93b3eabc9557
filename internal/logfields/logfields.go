package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCategory   = "category"
	KeyRunID      = "run_id"
	KeyState      = "state"
	KeyPath       = "path"
	KeyOutput     = "output"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyFiles      = "files"
	KeyFailed     = "failed"
	KeySkipped    = "skipped"
	KeyOp         = "op"
	KeyError      = "error"

	KeyMethod     = "method"
	KeyURLPath    = "url_path"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyAddr       = "addr"
	KeyRequestID  = "request_id"
)

func Category(c string) slog.Attr  { return slog.String(KeyCategory, c) }
func RunID(id string) slog.Attr    { return slog.String(KeyRunID, id) }
func State(s string) slog.Attr     { return slog.String(KeyState, s) }
func Path(p string) slog.Attr      { return slog.String(KeyPath, p) }
func Output(p string) slog.Attr    { return slog.String(KeyOutput, p) }
func Stage(name string) slog.Attr  { return slog.String(KeyStage, name) }
func Files(n int) slog.Attr        { return slog.Int(KeyFiles, n) }
func Failed(n int) slog.Attr       { return slog.Int(KeyFailed, n) }
func Skipped(n int) slog.Attr      { return slog.Int(KeySkipped, n) }
func Op(op string) slog.Attr       { return slog.String(KeyOp, op) }
func Addr(a string) slog.Attr      { return slog.String(KeyAddr, a) }
func Method(m string) slog.Attr    { return slog.String(KeyMethod, m) }
func URLPath(p string) slog.Attr   { return slog.String(KeyURLPath, p) }
func Status(code int) slog.Attr    { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr  { return slog.String(KeyRequestID, id) }

// DurationMS reports d in fractional milliseconds.
func DurationMS(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
