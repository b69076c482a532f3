// package shared defines shared helpers
package shared

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewLoggerFromConfig builds the application logger from the [LogConfig] section.
//
// When a file is configured, output is tee'd to stderr and a rotating file.
func NewLoggerFromConfig(cfg LogConfig) (*log.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = io.MultiWriter(os.Stderr, NewRotatingFile(cfg))
	}

	logger := NewLogger(w)
	if cfg.Level == "" {
		return logger, nil
	}

	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, ErrInvalidConfig
	}
	SetLogLevel(logger, lvl)
	return logger, nil
}

// NewRotatingFile returns a writer for cfg.File that rotates by size and age.
func NewRotatingFile(cfg LogConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateCode returns a short upper-case confirmation code.
func GenerateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// SetKey returns the canonical key for a set of ids: sorted, de-duplicated and comma-joined.
//
// Two sets with the same members always produce the same key.
func SetKey(ids []string) string {
	sorted := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
