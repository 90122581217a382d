package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/stadium/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumEvents   = 200
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultRate        = 2
	defaultDuplicate   = 0.1
	defaultTimeout     = 10 * time.Second
	defaultSettle      = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numEvents = flag.Int("events", defaultNumEvents, "Number of celebrations to submit")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		rate      = flag.Float64("rate", defaultRate, "Client-side requests per second, 0 for unlimited")
		duplicate = flag.Float64("duplicate", defaultDuplicate, "Share of repeated celebrations")
		contest   = flag.String("contest", "fire-drill", "Contest id on every celebration")
		league    = flag.String("league", "nfl", "League of the generated teams")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", defaultSettle, "How long to wait for dispatches")
		logFile   = flag.String("log", "", "Log file (default: fire_drill_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	closer, err := testevents.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:   *baseURL,
		Contest:   *contest,
		League:    *league,
		NumEvents: *numEvents,
		Workers:   *workers,
		Rate:      *rate,
		Duplicate: *duplicate,
		Timeout:   *timeout,
		Settle:    *settle,
		LogFile:   *logFile,
		Verbose:   *verbose,
	}

	if _, err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Fire drill failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
