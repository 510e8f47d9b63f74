package logger

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the manager log file destination.
type Config struct {
	Path       string // log file path; empty disables file logging
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // rotated files to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// Writer returns a rotating writer for the configured path, or nil when
// file logging is disabled.
func (c Config) Writer() io.WriteCloser {
	if c.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// StripANSI removes terminal control/coloring escape sequences so that
// persisted log lines stay plain text.
func StripANSI(s string) string { return ansiRE.ReplaceAllString(s, "") }

// StripWriter forwards writes to w with ANSI escape sequences removed.
// Used to tee colored terminal output into a plain-text file.
func StripWriter(w io.Writer) io.Writer { return stripWriter{w} }

type stripWriter struct{ w io.Writer }

func (s stripWriter) Write(p []byte) (int, error) {
	if _, err := s.w.Write([]byte(StripANSI(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// New builds the manager slog logger writing to w. When color is true the
// level token is ANSI-colored for terminal output.
func New(w io.Writer, level slog.Level, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if color {
		return slog.New(NewColorTextHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// FileLog is the append-only persistent log shared by the manager and the
// child's console output. Every line is prefixed with a timestamp and
// stripped of escape sequences. Appends are serialized.
type FileLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileLog opens the file log described by c. Returns nil when file
// logging is disabled, which callers treat as a no-op sink.
func NewFileLog(c Config) *FileLog {
	return FileLogFrom(c.Writer())
}

// FileLogFrom wraps an already-open writer, typically to share one
// rotation target between the manager logger and the console log.
func FileLogFrom(w io.WriteCloser) *FileLog {
	if w == nil {
		return nil
	}
	return &FileLog{w: w}
}

// Append writes one timestamped line. Safe on a nil receiver.
func (f *FileLog) Append(ts time.Time, source, line string) {
	if f == nil {
		return
	}
	clean := StripANSI(line)
	f.mu.Lock()
	defer f.mu.Unlock()
	if source != "" {
		_, _ = fmt.Fprintf(f.w, "[%s] [%s] %s\n", ts.Format("2006-01-02 15:04:05"), source, clean)
		return
	}
	_, _ = fmt.Fprintf(f.w, "[%s] %s\n", ts.Format("2006-01-02 15:04:05"), clean)
}

// Close flushes and closes the underlying writer. Safe on nil.
func (f *FileLog) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Close()
}
