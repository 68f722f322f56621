// Package reader is the public entry point used by the serving layer.
// It fronts the opener dispatcher with the shared dataset cache: a hit
// deserializes a previously opened handle and skips all identification
// and opener work, a miss opens storage and writes the handle back with
// a fixed TTL. Cache failures never surface; caching is a pure
// optimization with no availability impact.
package reader

import (
	"context"
	"fmt"

	"github.com/stratoslab/multidim/common/cache"
	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/common/logger"
	"github.com/stratoslab/multidim/dataset"
)

// OpenFunc matches dataset.GuessOpener, as a seam for tests
type OpenFunc func(ctx context.Context, srcPath string, opts dataset.OpenOptions) (*dataset.Dataset, error)

// Deps are the injected collaborators. Nothing here is a process-wide
// singleton: callers construct and pass them down explicitly.
type Deps struct {
	Config *config.Config
	Cache  cache.Cache
	Log    *logger.Logger
	// VersionedStore is forwarded to the icechunk opener; nil when the
	// runtime carries no versioned-store support
	VersionedStore dataset.VersionedStore
	// Open overrides the opener dispatcher, for tests
	Open OpenFunc
}

func (d Deps) open() OpenFunc {
	if d.Open != nil {
		return d.Open
	}
	return dataset.GuessOpener
}

func (d Deps) cacheEnabled() bool {
	return d.Cache != nil && d.Config != nil && d.Config.Cache.Enabled
}

// Options identify one dataset read
type Options struct {
	SrcPath     string
	Group       string
	DecodeTimes bool
	Variable    string
	// Sel optionally selects along coordinates, e.g. {"time": "2023-01-01"}
	Sel map[string]string
	// Opener carries extra per-open options; the configured chunk
	// access mapping is merged in when the caller supplies none
	Opener dataset.OpenOptions
}

// CacheKey is the deterministic cache key for one logical dataset.
// Variable and sel are applied after retrieval and deliberately absent.
func CacheKey(srcPath, group string, decodeTimes bool) string {
	return fmt.Sprintf("%s_group:%s_time:%t", srcPath, group, decodeTimes)
}

// Reader holds one opened dataset and the selected variable view for
// the duration of a request
type Reader struct {
	Dataset *dataset.Dataset
	Input   *dataset.DataArray
}

// New opens (possibly from cache) the dataset and selects the requested
// variable. The caller owns the returned handle and must Close it.
func New(ctx context.Context, opts Options, deps Deps) (*Reader, error) {
	ds, err := openCached(ctx, opts, deps)
	if err != nil {
		return nil, err
	}

	input, err := ds.SelectVariable(opts.Variable, opts.Sel)
	if err != nil {
		ds.Close()
		return nil, err
	}

	return &Reader{
		Dataset: ds,
		Input:   input,
	}, nil
}

// Bounds returns the spatial extent for downstream tiling
func (r *Reader) Bounds() [4]float64 {
	return r.Dataset.Bounds()
}

// CRS returns the coordinate reference system
func (r *Reader) CRS() string {
	return r.Dataset.CRS()
}

// Close releases the underlying handle
func (r *Reader) Close() error {
	return r.Dataset.Close()
}

// openCached runs the cache-read → open → cache-write lifecycle
func openCached(ctx context.Context, opts Options, deps Deps) (*dataset.Dataset, error) {
	if !deps.cacheEnabled() {
		return openFresh(ctx, opts, deps)
	}

	key := CacheKey(opts.SrcPath, opts.Group, opts.DecodeTimes)

	// Read errors are treated as a miss
	if data, hit, err := deps.Cache.Get(ctx, key); err == nil && hit {
		ds, err := dataset.Unmarshal(data)
		if err == nil {
			deps.Log.Debug("dataset cache hit", "key", key)
			return ds, nil
		}
		deps.Log.Warn("discarding undecodable cache entry", "key", key, "error", err)
	} else if err != nil {
		deps.Log.Warn("cache read failed, opening storage", "key", key, "error", err)
	}

	ds, err := openFresh(ctx, opts, deps)
	if err != nil {
		return nil, err
	}

	// Best-effort write-through: a failure must not fail the request
	if data, err := ds.Marshal(); err != nil {
		deps.Log.Warn("dataset not cacheable", "key", key, "error", err)
	} else if err := deps.Cache.Set(ctx, key, data, deps.Config.Cache.TTL); err != nil {
		deps.Log.Warn("cache write failed", "key", key, "error", err)
	} else {
		deps.Log.Debug("dataset cached", "key", key, "ttl", deps.Config.Cache.TTL)
	}

	return ds, nil
}

// openFresh invokes the opener dispatcher with merged options
func openFresh(ctx context.Context, opts Options, deps Deps) (*dataset.Dataset, error) {
	openerOpts := opts.Opener
	openerOpts.Group = opts.Group
	openerOpts.DecodeTimes = opts.DecodeTimes

	// Process configuration fills in what the caller left unset
	if openerOpts.AuthorizedChunkAccess == nil && deps.Config != nil {
		openerOpts.AuthorizedChunkAccess = deps.Config.Access.AuthorizedChunkAccess
	}
	if openerOpts.VersionedStore == nil {
		openerOpts.VersionedStore = deps.VersionedStore
	}

	return deps.open()(ctx, opts.SrcPath, openerOpts)
}

// ListVariables opens the dataset without any cache involvement and
// returns its data-variable names, releasing the handle before
// returning. Used by introspection endpoints.
func ListVariables(ctx context.Context, srcPath, group string, decodeTimes bool, deps Deps) ([]string, error) {
	ds, err := openFresh(ctx, Options{
		SrcPath:     srcPath,
		Group:       group,
		DecodeTimes: decodeTimes,
	}, deps)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	return ds.DataVars(), nil
}
