package testevents

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/stadium/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging logs to both console and file. If logFile is empty, a
// timestamped filename is generated.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "fire_drill_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`Stadium Fire Drill
==================

Fires synthetic manual celebrations at a running stadium server while a
subscriber counts what comes back on the stream.

Usage:
  go run ./cmd/test-events [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -events int        Number of celebrations to submit (default 200)
  -workers int       Number of concurrent submitters (default CPU cores * 2)
  -rate float        Client-side requests per second, 0 for unlimited (default 2)
  -duplicate float   Share of repeated celebrations (default 0.1)
  -contest string    Contest id on every celebration (default "fire-drill")
  -league string     League of the generated teams (default "nfl")
  -timeout duration  HTTP request timeout (default 10s)
  -settle duration   How long to wait for dispatches (default 30s)
  -log string        Log file (default: fire_drill_TIMESTAMP.log)
  -verbose           Enable verbose logging
  -help              Show this help message

The server's trigger limiter defaults to 2/s; raise STADIUM_TRIGGER__RATE
for larger drills, or rejected requests are reported as rate limited.
`)
}
