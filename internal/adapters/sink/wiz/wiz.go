// Package wiz drives WiZ bulbs over their local UDP JSON protocol.
package wiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/pkg/logger"
)

// Protocol defaults.
const (
	DefaultPort         = 38899
	defaultReplyTimeout = 750 * time.Millisecond
	defaultIdleTemp     = 2700
	defaultIdleDimming  = 70
	minDimming          = 10
	maxReplySize        = 1024
)

type colorParams struct {
	R       uint8 `json:"r"`
	G       uint8 `json:"g"`
	B       uint8 `json:"b"`
	Dimming int   `json:"dimming"`
}

type tempParams struct {
	Temp    int `json:"temp"`
	Dimming int `json:"dimming"`
}

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type reply struct {
	Method string `json:"method"`
	Result *struct {
		Success bool `json:"success"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Sink sends setPilot commands to a set of bulbs. Each step goes to all bulbs
// in parallel and succeeds when at least one bulb acknowledges it.
type Sink struct {
	id           string
	addrs        []string
	replyTimeout time.Duration
	idleTemp     int
	idleDimming  int
	clock        clockwork.Clock
	logger       logger.Logger
}

// New builds a sink for bulbs given as "host" or "host:port".
func New(bulbs []string, opts ...Option) *Sink {
	o := options{
		id:           "wiz",
		port:         DefaultPort,
		replyTimeout: defaultReplyTimeout,
		idleTemp:     defaultIdleTemp,
		idleDimming:  defaultIdleDimming,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("wiz")
	}

	addrs := make([]string, 0, len(bulbs))
	for _, b := range bulbs {
		if _, _, err := net.SplitHostPort(b); err == nil {
			addrs = append(addrs, b)
			continue
		}
		addrs = append(addrs, net.JoinHostPort(b, strconv.Itoa(o.port)))
	}

	return &Sink{
		id:           o.id,
		addrs:        addrs,
		replyTimeout: o.replyTimeout,
		idleTemp:     o.idleTemp,
		idleDimming:  o.idleDimming,
		clock:        o.clock,
		logger:       o.logger,
	}
}

// ID implements sink.Sink.
func (s *Sink) ID() string { return s.id }

// Apply plays the command's steps and, unless the command is ambient, returns
// the bulbs to idle afterwards.
func (s *Sink) Apply(ctx context.Context, cmd celebration.Command) error {
	if len(s.addrs) == 0 {
		return sink.ErrNoDevices
	}
	dimming := sink.Scale(cmd.Intensity.Brightness(), minDimming)
	err := sink.Play(ctx, s.clock, cmd.Steps, func(ctx context.Context, step celebration.Step) error {
		return s.broadcast(ctx, request{
			Method: "setPilot",
			Params: colorParams{R: step.Color.R, G: step.Color.G, B: step.Color.B, Dimming: dimming},
		})
	})
	if err != nil {
		return err
	}
	if cmd.Ambient {
		return nil
	}
	return s.ApplyIdle(ctx)
}

// ApplyOverhead implements sink.Budgeted. Every broadcast may wait a full
// reply timeout when a bulb is unreachable.
func (s *Sink) ApplyOverhead(cmd celebration.Command) time.Duration {
	n := len(cmd.Steps)
	if !cmd.Ambient {
		n++
	}
	return time.Duration(n) * s.replyTimeout
}

// IdleOverhead implements sink.Budgeted.
func (s *Sink) IdleOverhead() time.Duration {
	return s.replyTimeout
}

// ApplyIdle sets warm white.
func (s *Sink) ApplyIdle(ctx context.Context) error {
	if len(s.addrs) == 0 {
		return sink.ErrNoDevices
	}
	return s.broadcast(ctx, request{
		Method: "setPilot",
		Params: tempParams{Temp: s.idleTemp, Dimming: s.idleDimming},
	})
}

func (s *Sink) broadcast(ctx context.Context, req request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode pilot: %w", err)
	}

	errs := make([]error, len(s.addrs))
	var g errgroup.Group
	for i, addr := range s.addrs {
		g.Go(func() error {
			errs[i] = s.send(ctx, addr, payload)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, e := range errs {
		if e != nil {
			failed++
			s.logger.Debug(ctx, "bulb did not acknowledge", logger.String("bulb", s.addrs[i]), logger.Error(e))
		}
	}
	if failed == len(s.addrs) {
		return fmt.Errorf("%w: %w", sink.ErrUnreachable, errors.Join(errs...))
	}
	return nil
}

func (s *Sink) send(ctx context.Context, addr string, payload []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := s.clock.Now().Add(s.replyTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}

	buf := make([]byte, maxReplySize)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	var r reply
	if err := json.Unmarshal(buf[:n], &r); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if r.Error != nil {
		return fmt.Errorf("%w: %s", sink.ErrRejected, r.Error.Message)
	}
	if r.Result == nil || !r.Result.Success {
		return sink.ErrRejected
	}
	return nil
}
