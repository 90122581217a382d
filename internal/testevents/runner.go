package testevents

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/stadium/pkg/logger"
)

// Run executes the complete fire drill.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting stadium fire drill",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Float64("rate", config.Rate),
		logger.Float64("duplicate", config.Duplicate),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceStatus(ctx, config); err != nil {
		return stats, fmt.Errorf("service status check failed: %w", err)
	}

	// Step 2: Subscribe before anything is sent
	streamCtx, stopStream := context.WithCancel(ctx)
	l := newListener(config.BaseURL)
	defer func() {
		stopStream()
		<-l.done
	}()
	if err := l.start(streamCtx); err != nil {
		return stats, fmt.Errorf("subscribe failed: %w", err)
	}

	// Step 3: Generate and submit
	celebrations := generateCelebrations(ctx, config, stats)
	accepted, err := submitCelebrations(ctx, config, celebrations, stats)
	if err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	// Step 4: Wait for the stream to catch up
	log.Info(ctx, "waiting for dispatches", logger.Int("expected", len(accepted)))
	l.settle(ctx, accepted, config.Settle)
	gameEvents, dispatched := l.counts()
	stats.GameEvents = gameEvents
	for _, n := range dispatched {
		stats.Dispatches += n
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	// Step 5: Verify
	if err := verifyResults(ctx, config, accepted, celebrations, dispatched, stats); err != nil {
		return stats, err
	}

	log.Info(ctx, "fire drill completed successfully")
	return stats, nil
}

// checkServiceStatus verifies the service answers and logs any degraded
// reasons.
func checkServiceStatus(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/status")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != statusOK {
		return fmt.Errorf("status check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is up")
	return nil
}

// displayFinalStats logs the final drill statistics.
func displayFinalStats(stats *Stats) {
	var successRate, perSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Accepted+stats.Duplicate) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("failed", stats.Failed),
		logger.Int("dispatches", stats.Dispatches),
		logger.Int("gameEvents", stats.GameEvents),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", perSecond))
}
