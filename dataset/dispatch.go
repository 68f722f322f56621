package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/storage"
)

// OpenOptions carries caller-supplied options through the dispatcher to
// the per-format openers
type OpenOptions struct {
	Group       string
	DecodeTimes bool
	// AuthorizedChunkAccess maps URL prefixes to credential policies
	// for icechunk virtual chunks
	AuthorizedChunkAccess map[string]config.ChunkAccessPolicy
	// VersionedStore is the icechunk capability, nil when the runtime
	// has none
	VersionedStore VersionedStore
}

// openerFunc is the shared contract of the per-format openers
type openerFunc func(ctx context.Context, store storage.Store, loc storage.Locator, opts OpenOptions) (*Dataset, error)

// openers dispatches on the identified format
var openers = map[Format]openerFunc{
	FormatZarr: func(ctx context.Context, store storage.Store, loc storage.Locator, opts OpenOptions) (*Dataset, error) {
		return openZarr(ctx, store, loc.Prefix, opts)
	},
	FormatH5NetCDF: openNetCDF,
	FormatIcechunk: openIcechunk,
}

// GuessOpener identifies the storage format behind srcPath and opens it
// with the matching opener. Stateless and idempotent: identical inputs
// attempt identical work.
func GuessOpener(ctx context.Context, srcPath string, opts OpenOptions) (*Dataset, error) {
	loc, err := storage.ParseLocator(srcPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, loc)
	if err != nil {
		return nil, err
	}

	format, err := Identify(ctx, store, loc)
	if err != nil {
		return nil, err
	}

	open, ok := openers[format]
	if !ok {
		return nil, fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)
	}

	ds, err := open(ctx, store, loc, opts)
	if err != nil {
		if isBadInput(err) {
			return nil, err
		}
		return nil, &OpenError{Src: srcPath, Err: err}
	}
	ds.SrcPath = srcPath
	return ds, nil
}

// isBadInput separates caller errors from backend failures so handlers
// can map them to distinct responses
func isBadInput(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrUnauthorizedChunkAccess) ||
		errors.Is(err, ErrVersionedStoreUnavailable) ||
		errors.Is(err, storage.ErrUnsupportedProtocol)
}
