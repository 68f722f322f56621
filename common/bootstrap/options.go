package bootstrap

import (
	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/common/logger"
	"github.com/stratoslab/multidim/dataset"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipCache      bool
	customLogger   *logger.Logger
	customConfig   *config.Config
	versionedStore dataset.VersionedStore
}

// WithoutCache skips cache initialization regardless of configuration
func WithoutCache() Option {
	return func(o *options) {
		o.skipCache = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithVersionedStore injects icechunk support. Without this option,
// icechunk opens fail with a dependency-missing error at first use.
func WithVersionedStore(vs dataset.VersionedStore) Option {
	return func(o *options) {
		o.versionedStore = vs
	}
}

func defaultOptions() *options {
	return &options{}
}
