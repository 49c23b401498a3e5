package logger

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/m-mizutani/masq"
)

// RedactedFields are attribute keys whose values never reach the log output.
var RedactedFields = []string{"stream_key", "token", "authorization"}

// New returns a structured logger with the given level and format, writing to stdout.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "text" (default "json").
// String attributes that carry one of secrets as a stream path segment
// are redacted. The message itself is never redacted.
func New(level, format string, secrets ...string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format, secrets...)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string, secrets ...string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactor(secrets),
	}

	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// secretPattern matches a value that is the secret itself or carries it as
// a stream path segment, such as /live/<secret>, /live/<secret>/index.m3u8
// or rtmp://host:1935/live/<secret>. The segment before the secret must not
// contain a colon, so that host:port/<secret> is not mistaken for a key
// when the secret equals the application name.
func secretPattern(secret string) *regexp.Regexp {
	q := regexp.QuoteMeta(secret)
	return regexp.MustCompile(`^` + q + `$|(^|/)[^/:]+/` + q + `(/|\?|$)`)
}

func redactor(secrets []string) func(groups []string, a slog.Attr) slog.Attr {
	opts := make([]masq.Option, 0, len(secrets)+len(RedactedFields))
	for _, s := range secrets {
		if s != "" {
			opts = append(opts, masq.WithRegex(secretPattern(s)))
		}
	}
	for _, f := range RedactedFields {
		opts = append(opts, masq.WithFieldName(f))
	}
	replace := masq.New(opts...)

	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.MessageKey {
			return a
		}
		// Only strings can carry a secret; other kinds keep their native encoding.
		if a.Value.Kind() != slog.KindString {
			return a
		}
		return replace(groups, a)
	}
}
