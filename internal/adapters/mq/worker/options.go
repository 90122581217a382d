package worker

import (
	"github.com/okian/stadium/pkg/logger"
)

type options struct {
	name     string
	capacity int
	logger   logger.Logger
}

func defaultOptions() options {
	return options{name: "lane", capacity: defaultLaneCapacity}
}

// Option applies a configuration option to a Lane or Pool.
type Option func(*options)

// WithName sets the lane name, or the queue metrics label for a Pool.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCapacity sets the queue depth of each pool lane.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}
