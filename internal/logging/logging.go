// Package logging builds the process logger: JSON records to stdout, an
// optional rotating file, and an in-memory tail of recent lines that the
// control surface exposes in the bot status.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"cryptohunter/internal/config"
)

// Logging owns the logger and its outputs.
type Logging struct {
	Logger *slog.Logger
	Lines  *LineBuffer
	file   *lumberjack.Logger
}

// New creates the logger described by cfg, writing to stdout as well.
func New(cfg config.LogConfig) (*Logging, error) {
	return newWithOutput(cfg, os.Stdout)
}

func newWithOutput(cfg config.LogConfig, out io.Writer) (*Logging, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	l := &Logging{Lines: NewLineBuffer(cfg.BufferLines)}
	writers := []io.Writer{out, l.Lines}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, l.file)
	}

	l.Logger = slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level}))
	return l, nil
}

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel accepts debug, info, warn or error. An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("logging: invalid level %q", s)
	}
	return level, nil
}

// LineBuffer keeps the last N complete lines written to it.
type LineBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial strings.Builder
}

// NewLineBuffer creates a LineBuffer holding up to size lines (at least one).
func NewLineBuffer(size int) *LineBuffer {
	if size < 1 {
		size = 1
	}
	return &LineBuffer{max: size}
}

func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)
	data := b.partial.String()
	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		return len(p), nil
	}

	for _, line := range strings.Split(data[:idx], "\n") {
		if line == "" {
			continue
		}
		b.lines = append(b.lines, line)
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}

	b.partial.Reset()
	b.partial.WriteString(data[idx+1:])
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *LineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
