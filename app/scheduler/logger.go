// Package scheduler contains background workers driven by ticker loops
package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newWorkerLogger builds a logger writing to stdout and a size-rotated
// file under data/ (or /data in containers).
func newWorkerLogger(prefix, filename string) *log.Logger {
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(dir, filename),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		mw := io.MultiWriter(os.Stdout, rotated)
		return log.New(mw, prefix, log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}
	logger := log.Default()
	logger.Printf("%sfailed to initialize file logger, using stdout only", prefix)
	return logger
}
