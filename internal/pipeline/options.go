package pipeline

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/metrics"
)

type options struct {
	id      string
	logger  *log.Logger
	metrics *metrics.Metrics
	cache   *cache.Manager
}

// Option customizes a stream or agent.
type Option func(*options)

// WithStreamID sets the id stamped on emitted events. A random UUID is used
// otherwise.
func WithStreamID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records stream activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCache makes a SynthesisStream look segments up in c before
// synthesizing them and store what it synthesizes.
func WithCache(c *cache.Manager) Option {
	return func(o *options) { o.cache = c }
}

func buildOptions(prefix string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = log.WithPrefix(prefix)
	}
	o.logger = o.logger.With("stream", shortID(o.id))
	return o
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
