// Package logger sets up run logging: full records go to a timestamped file
// under logs/, the console gets one dot per record so progress stays visible
// without drowning the terminal.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DotWriter emits a single dot for every record written through it.
type DotWriter struct {
	out io.Writer
}

func (w *DotWriter) Write(p []byte) (int, error) {
	fmt.Fprint(w.out, ".")
	return len(p), nil
}

// Setup creates logs/smbtempest_<timestamp>.log and returns a logger that
// writes full records there and dots to stderr. The returned closer flushes
// and closes the log file.
func Setup(debug bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs dir: %w", err)
	}

	name := fmt.Sprintf("smbtempest_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join("logs", name)
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(io.MultiWriter(f, &DotWriter{out: os.Stderr}), &slog.HandlerOptions{
		Level: level,
	})
	log := slog.New(handler)
	log.Info("logging initialized", "file", path)

	return log, f.Close, nil
}
