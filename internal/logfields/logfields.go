package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyFile       = "file"
	KeyJobID      = "job_id"
	KeyJobState   = "job_state"
	KeyAttempt    = "attempt"
	KeyEventKind  = "event_kind"
	KeyDurationMS = "duration_ms"
	KeyWorker     = "worker"
	KeyHealth     = "health"
	KeyError      = "error"

	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func File(path string) slog.Attr      { return slog.String(KeyFile, path) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobState(s string) slog.Attr     { return slog.String(KeyJobState, s) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func EventKind(k string) slog.Attr    { return slog.String(KeyEventKind, k) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Worker(id string) slog.Attr      { return slog.String(KeyWorker, id) }
func Health(status string) slog.Attr  { return slog.String(KeyHealth, status) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
