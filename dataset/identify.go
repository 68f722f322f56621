package dataset

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/stratoslab/multidim/storage"
)

// Format tags the storage layout of a dataset URL
type Format string

const (
	FormatZarr     Format = "zarr"
	FormatIcechunk Format = "icechunk"
	FormatH5NetCDF Format = "h5netcdf"
)

// Identify classifies the location behind loc into a Format. It relies
// only on the bounded listing primitive, which behaves the same for
// local directories and object storage; filesystem-only calls like stat
// or isdir are deliberately absent since they misbehave on remote
// backends.
//
// A location with objects under "<prefix>/" is directory-like: the
// presence of a "manifests/" subtree marks an icechunk repository,
// anything else is a plain zarr store. A location with nothing beneath
// it is a single file classified by extension.
func Identify(ctx context.Context, store storage.Store, loc storage.Locator) (Format, error) {
	keys, err := store.List(ctx, loc.Prefix+"/", 1)
	if err != nil {
		return "", fmt.Errorf("probing %s: %w", loc, err)
	}

	if len(keys) == 0 {
		return identifyFile(loc)
	}

	keys, err = store.List(ctx, loc.Prefix+"/manifests/", 1)
	if err != nil {
		return "", fmt.Errorf("probing %s: %w", loc, err)
	}
	if len(keys) > 0 {
		return FormatIcechunk, nil
	}
	return FormatZarr, nil
}

// identifyFile maps a single file's extension to a format
func identifyFile(loc storage.Locator) (Format, error) {
	switch strings.ToLower(path.Ext(loc.Prefix)) {
	case ".nc", ".nc4":
		return FormatH5NetCDF, nil
	default:
		return "", fmt.Errorf("%s: %w", loc, ErrUnsupportedFormat)
	}
}
