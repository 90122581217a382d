package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/classify"
	"github.com/okian/stadium/internal/domain/event"
	"github.com/okian/stadium/internal/domain/teams"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
)

// Default service configuration constants.
const (
	defaultPollInterval     = 10 * time.Second
	defaultFailureThreshold = 5
	defaultHealthInterval   = 10 * time.Second
)

// Recorder is the write-only history boundary.
type Recorder interface {
	RecordEvent(ctx context.Context, e event.Event) error
	RecordDispatch(ctx context.Context, r dispatch.Result) error
}

type options struct {
	source           feed.Source
	sinks            []sink.Sink
	palettes         teams.Lookup
	recorder         Recorder
	pollInterval     time.Duration
	failureThreshold int
	healthInterval   time.Duration
	untrackOnFinal   bool
	backoff          []reconnect.Option
	dispatchOpts     []dispatch.Option
	hubOpts          []hub.Option
	classifyOpts     []classify.Option
	clock            clockwork.Clock
	logger           logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*options)

// WithSource sets where snapshots come from.
func WithSource(src feed.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithSinks sets the actuator sinks celebrations fan out to.
func WithSinks(sinks ...sink.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithPalettes sets the team color table.
func WithPalettes(p teams.Lookup) Option {
	return func(o *options) {
		if p != nil {
			o.palettes = p
		}
	}
}

// WithRecorder enables the history sink.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithPollInterval sets the delay between successful polls of one contest.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFailureThreshold sets how many consecutive fetch failures mark a
// contest's feed unreachable.
func WithFailureThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.failureThreshold = n
		}
	}
}

// WithHealthInterval sets how often sink health is re-evaluated.
func WithHealthInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthInterval = d
		}
	}
}

// WithUntrackOnFinal controls whether a contest stops being polled once it
// goes final. Enabled by default.
func WithUntrackOnFinal(enabled bool) Option {
	return func(o *options) {
		o.untrackOnFinal = enabled
	}
}

// WithBackoff configures the retry delay added after failed polls.
func WithBackoff(opts ...reconnect.Option) Option {
	return func(o *options) {
		o.backoff = append(o.backoff, opts...)
	}
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
	}
}

// WithHubOptions passes options through to the broadcast hub.
func WithHubOptions(opts ...hub.Option) Option {
	return func(o *options) {
		o.hubOpts = append(o.hubOpts, opts...)
	}
}

// WithClassifierOptions passes options through to the classifier.
func WithClassifierOptions(opts ...classify.Option) Option {
	return func(o *options) {
		o.classifyOpts = append(o.classifyOpts, opts...)
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
