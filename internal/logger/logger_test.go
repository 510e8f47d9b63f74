package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStripANSI(t *testing.T) {
	cases := map[string]string{
		"plain line":                     "plain line",
		"\x1b[31mred\x1b[0m text":        "red text",
		"\x1b[1;32;40mbold green\x1b[0m": "bold green",
		"no trailing reset \x1b[33mhere": "no trailing reset here",
	}
	for in, want := range cases {
		if got := StripANSI(in); got != want {
			t.Errorf("StripANSI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileLogAppendTimestampAndSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamekeeper.log")
	fl := NewFileLog(Config{Path: path})
	if fl == nil {
		t.Fatal("expected file log")
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fl.Append(ts, "stderr", "\x1b[31msomething broke\x1b[0m")
	fl.Append(ts, "", "manager message")
	if err := fl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), raw)
	}
	if lines[0] != "[2026-01-02 03:04:05] [stderr] something broke" {
		t.Fatalf("line 0: %q", lines[0])
	}
	if lines[1] != "[2026-01-02 03:04:05] manager message" {
		t.Fatalf("line 1: %q", lines[1])
	}
}

func TestNilFileLogIsNoop(t *testing.T) {
	var fl *FileLog
	fl.Append(time.Now(), "stdout", "dropped")
	if err := fl.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}

func TestStripWriterTeesPlainText(t *testing.T) {
	var console, file bytes.Buffer
	log := New(io.MultiWriter(&console, StripWriter(&file)), slog.LevelInfo, true)
	log.Warn("careful")
	if !strings.Contains(console.String(), "\033[33m") {
		t.Fatalf("console lost color: %q", console.String())
	}
	if strings.Contains(file.String(), "\033[") {
		t.Fatalf("file kept escapes: %q", file.String())
	}
	if !strings.Contains(file.String(), "careful") {
		t.Fatalf("file missing message: %q", file.String())
	}
}

func TestColorHandlerColorsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, true)
	log.Warn("careful")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("missing colored level: %q", out)
	}
	if !strings.Contains(out, "careful") {
		t.Fatalf("missing message: %q", out)
	}
}

func TestPlainHandlerHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, false)
	log.Info("hello")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("unexpected escapes: %q", buf.String())
	}
}
