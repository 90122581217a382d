// Package govee drives Govee lights through the vendor cloud API.
package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/pkg/logger"
)

// API defaults.
const (
	DefaultBaseURL     = "https://developer-api.govee.com"
	controlPath        = "/v1/devices/control"
	apiKeyHeader       = "Govee-API-Key"
	defaultIdleTemp    = 2700
	defaultIdleBright  = 70
	defaultRate        = 10
	defaultBurst       = 5
	defaultHTTPTimeout = 5 * time.Second
	defaultRequestCost = 500 * time.Millisecond
	maxErrorBody       = 512
)

// Device is one controllable Govee light.
type Device struct {
	ID    string `koanf:"id" json:"id" yaml:"id"`
	Model string `koanf:"model" json:"model" yaml:"model"`
}

type control struct {
	Device string  `json:"device"`
	Model  string  `json:"model"`
	Cmd    command `json:"cmd"`
}

type command struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type rgb struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Sink issues control requests for every configured device. The cloud API is
// rate limited, so every request waits on a shared limiter.
type Sink struct {
	id       string
	apiKey   string
	baseURL  string
	devices  []Device
	client   *http.Client
	limiter  *rate.Limiter
	cost     time.Duration
	idleTemp int
	idleBri  int
	clock    clockwork.Clock
	logger   logger.Logger
}

// New creates a Govee sink.
func New(apiKey string, devices []Device, opts ...Option) *Sink {
	o := options{
		id:       "govee",
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		limiter:  rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		cost:     defaultRequestCost,
		idleTemp: defaultIdleTemp,
		idleBri:  defaultIdleBright,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("govee")
	}
	return &Sink{
		id:       o.id,
		apiKey:   apiKey,
		baseURL:  o.baseURL,
		devices:  devices,
		client:   o.client,
		limiter:  o.limiter,
		cost:     o.cost,
		idleTemp: o.idleTemp,
		idleBri:  o.idleBri,
		clock:    o.clock,
		logger:   o.logger,
	}
}

// ID implements sink.Sink.
func (s *Sink) ID() string { return s.id }

// Apply sets brightness once, then plays each step as a color command.
func (s *Sink) Apply(ctx context.Context, cmd celebration.Command) error {
	if len(s.devices) == 0 {
		return sink.ErrNoDevices
	}
	if err := s.all(ctx, command{Name: "brightness", Value: sink.Scale(cmd.Intensity.Brightness(), 1)}); err != nil {
		return err
	}
	err := sink.Play(ctx, s.clock, cmd.Steps, func(ctx context.Context, step celebration.Step) error {
		return s.all(ctx, command{Name: "color", Value: rgb{R: step.Color.R, G: step.Color.G, B: step.Color.B}})
	})
	if err != nil {
		return err
	}
	if cmd.Ambient {
		return nil
	}
	return s.ApplyIdle(ctx)
}

// ApplyOverhead implements sink.Budgeted: one brightness request, one color
// request per step and the two idle requests, for every device.
func (s *Sink) ApplyOverhead(cmd celebration.Command) time.Duration {
	per := 1 + len(cmd.Steps)
	if !cmd.Ambient {
		per += 2
	}
	return s.budget(per * len(s.devices))
}

// IdleOverhead implements sink.Budgeted.
func (s *Sink) IdleOverhead() time.Duration {
	return s.budget(2 * len(s.devices))
}

// budget is the round-trip allowance for n requests plus the time the limiter
// makes them wait once the burst is spent.
func (s *Sink) budget(n int) time.Duration {
	d := time.Duration(n) * s.cost
	if extra := n - s.limiter.Burst(); extra > 0 && s.limiter.Limit() > 0 {
		d += time.Duration(float64(extra) * float64(time.Second) / float64(s.limiter.Limit()))
	}
	return d
}

// ApplyIdle sets warm white at the idle brightness.
func (s *Sink) ApplyIdle(ctx context.Context) error {
	if len(s.devices) == 0 {
		return sink.ErrNoDevices
	}
	if err := s.all(ctx, command{Name: "colorTem", Value: s.idleTemp}); err != nil {
		return err
	}
	return s.all(ctx, command{Name: "brightness", Value: s.idleBri})
}

// all sends c to every device. It fails only when no device accepted it.
func (s *Sink) all(ctx context.Context, c command) error {
	var errs []error
	for _, d := range s.devices {
		if err := s.send(ctx, d, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug(ctx, "govee device rejected command",
				logger.String("device", d.ID),
				logger.String("cmd", c.Name),
				logger.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) == len(s.devices) {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Sink) send(ctx context.Context, d Device, c command) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(control{Device: d.ID, Model: d.Model, Cmd: c})
	if err != nil {
		return fmt.Errorf("encode control: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+controlPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", sink.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", sink.ErrRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
