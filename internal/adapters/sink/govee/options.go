package govee

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	id       string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	cost     time.Duration
	idleTemp int
	idleBri  int
	clock    clockwork.Clock
	logger   logger.Logger
}

// Option configures a Sink.
type Option func(*options)

// WithID overrides the sink identifier.
func WithID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.id = id
		}
	}
}

// WithBaseURL points the sink at another API host, for tests.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithRateLimit sets requests per second and burst across all devices.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 && burst > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithRequestCost sets the round-trip allowance per API request used when the
// sink reports its expected overhead.
func WithRequestCost(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cost = d
		}
	}
}

// WithIdle sets the color temperature and brightness of the idle state.
func WithIdle(temp, brightness int) Option {
	return func(o *options) {
		if temp > 0 {
			o.idleTemp = temp
		}
		if brightness > 0 {
			o.idleBri = brightness
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
