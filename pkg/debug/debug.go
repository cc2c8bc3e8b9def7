// Package debug provides category-scoped debug logging.
//
// Categories select which subsystems log at DEBUG (ODIN_DEBUG or
// logging.debug, comma separated); the level selects how much is printed
// (ODIN_LOG_LEVEL or logging.level). TRACE additionally dumps request and
// response payloads.
//
//	debug.Log(debug.Dispatch, "descriptor built", "kind", kind)
//	debug.Payload(debug.Batch, "batch part", body)
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// Categories.
const (
	Dispatch  = "dispatch"
	Metadata  = "metadata"
	Storage   = "storage"
	Batch     = "batch"
	Auth      = "auth"
	Transport = "transport"
	Config    = "config"
	All       = "all"
)

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// maxPayload bounds the bytes of one payload dump.
const maxPayload = 4 << 10

var enabled atomic.Pointer[map[string]bool]

func init() {
	setCategories(os.Getenv("ODIN_DEBUG"))
}

// Init installs the default slog logger writing to stderr. ODIN_DEBUG and
// ODIN_LOG_LEVEL override categories and level. format is "text" or
// "json".
func Init(categories, level, format string) {
	InitWriter(os.Stderr, categories, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, categories, level, format string) {
	if v := os.Getenv("ODIN_DEBUG"); v != "" {
		categories = v
	}
	if v := os.Getenv("ODIN_LOG_LEVEL"); v != "" {
		level = v
	}
	setCategories(categories)

	opts := &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: traceLevelName}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether category logs.
func Enabled(category string) bool {
	m := *enabled.Load()
	return m[All] || m[category]
}

// EnabledCategories returns the configured categories, sorted.
func EnabledCategories() []string {
	m := *enabled.Load()
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Log emits a DEBUG record tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	if Enabled(category) {
		slog.Debug(msg, append([]any{"debug", category}, args...)...)
	}
}

// Trace emits a TRACE record tagged with category when it is enabled.
func Trace(category, msg string, args ...any) {
	if Enabled(category) {
		slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
	}
}

// Payload traces body, cut to a few kilobytes. Nothing is formatted
// unless TRACE is active for category.
func Payload(category, msg string, body []byte) {
	if len(body) == 0 || !Enabled(category) || !slog.Default().Enabled(context.Background(), LevelTrace) {
		return
	}
	s := string(body)
	if len(s) > maxPayload {
		s = s[:maxPayload] + "...(truncated)"
	}
	Trace(category, msg, "bytes", len(body), "payload", s)
}

// ParseLevel converts a level name to a slog.Level. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func traceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

func setCategories(s string) {
	m := parseCategories(s)
	enabled.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := map[string]bool{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			m[c] = true
		}
	}
	return m
}
