package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/stadium/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// submission tracks which event ids the server accepted at least once.
type submission struct {
	mu       sync.Mutex
	accepted map[string]struct{}

	submitted, ok, duplicate, limited, failed atomic.Int64
}

func (s *submission) record(c Celebration, outcome string) {
	s.submitted.Add(1)
	switch outcome {
	case outcomeAccepted, outcomeDuplicate:
		if outcome == outcomeAccepted {
			s.ok.Add(1)
		} else {
			s.duplicate.Add(1)
		}
		s.mu.Lock()
		s.accepted[c.EventID] = struct{}{}
		s.mu.Unlock()
	case outcomeRateLimited:
		s.limited.Add(1)
	default:
		s.failed.Add(1)
	}
}

// submitCelebrations posts every celebration with config.Workers concurrent
// submitters and returns the ids the server accepted.
func submitCelebrations(ctx context.Context, config *Config, cs []Celebration, stats *Stats) (map[string]struct{}, error) {
	log := logger.Get()
	log.Info(ctx, "submitting celebrations", logger.Int("count", len(cs)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/celebrations"

	var limiter *rate.Limiter
	if config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.Rate), max(1, config.Workers))
	}

	sub := &submission{accepted: make(map[string]struct{})}
	var lastReport atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, config.Workers))
	for _, c := range cs {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			sub.record(c, submitOne(gctx, client, url, c))

			now := time.Now().UnixNano()
			if last := lastReport.Load(); now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) && config.Verbose {
				log.Info(gctx, "progress",
					logger.Int64("submitted", sub.submitted.Load()),
					logger.Int("total", len(cs)),
					logger.Int64("failed", sub.failed.Load()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Submitted = int(sub.submitted.Load())
	stats.Accepted = int(sub.ok.Load())
	stats.Duplicate = int(sub.duplicate.Load())
	stats.RateLimited = int(sub.limited.Load())
	stats.Failed = int(sub.failed.Load())

	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("failed", stats.Failed))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sub.accepted, nil
}

func submitOne(ctx context.Context, client *HTTPClient, url string, c Celebration) string {
	resp, err := client.Post(ctx, url, c)
	if err != nil {
		return outcomeFailed
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcomeFailed
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			return outcomeDuplicate
		}
		return outcomeAccepted
	case http.StatusTooManyRequests:
		return outcomeRateLimited
	default:
		return outcomeFailed
	}
}
