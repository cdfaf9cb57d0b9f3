package spritenav

import (
	"log/slog"

	"github.com/hupe1980/spritenav/codec"
	"github.com/hupe1980/spritenav/config"
	"github.com/hupe1980/spritenav/persist"
	"github.com/hupe1980/spritenav/resource"
	"github.com/hupe1980/spritenav/rom"
)

type options struct {
	cfg              config.Config
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	cacheDir         string
	snapshotStore    persist.Store
	controller       *resource.Controller
	romProvider      rom.ByteProvider
}

// Option configures engine constructor behavior.
type Option func(*options)

// WithConfig replaces the default configuration. Zero fields are filled
// with defaults.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		cfg.Normalize()
		o.cfg = cfg
	}
}

// WithCodec configures the codec used for cached results and snapshots.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCacheDir enables the persistent cache tier rooted at dir.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithSnapshotStore configures where SaveSnapshot/LoadSnapshot persist the
// learned map. Without it snapshot operations fail.
func WithSnapshotStore(s persist.Store) Option {
	return func(o *options) {
		o.snapshotStore = s
	}
}

// WithResourceController bounds background work and cache write I/O.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithROM gives strategies optional read access to ROM bytes. The engine
// works without it; similarity fingerprints then come only from
// discoveries.
func WithROM(p rom.ByteProvider) Option {
	return func(o *options) {
		o.romProvider = p
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cfg:              config.Default(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	return o
}
