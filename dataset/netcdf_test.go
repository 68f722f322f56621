package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/robert-malhotra/go-hdf5/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeNetCDF creates a NetCDF4-style HDF5 file with lat/lon dimension
// scales and one data variable
func writeNetCDF(t *testing.T, path string) {
	t.Helper()

	f, err := hdf5.Create(path)
	require.NoError(t, err)

	root := f.Root()

	_, err = root.CreateDataset("lat", []float64{-60, 0, 60},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"),
		hdf5.WithAttribute("units", "degrees_north"),
	)
	require.NoError(t, err)

	_, err = root.CreateDataset("lon", []float64{-120, -40, 40, 120},
		hdf5.WithAttribute("CLASS", "DIMENSION_SCALE"),
		hdf5.WithAttribute("units", "degrees_east"),
	)
	require.NoError(t, err)

	_, err = root.CreateDataset("tas", [][]float64{
		{280, 281, 282, 283},
		{290, 291, 292, 293},
		{285, 286, 287, 288},
	}, hdf5.WithAttribute("units", "K"))
	require.NoError(t, err)

	require.NoError(t, f.Close())
}

func TestOpenNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testfile.nc")
	writeNetCDF(t, path)

	ds, err := GuessOpener(context.Background(), path, OpenOptions{DecodeTimes: true})
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, FormatH5NetCDF, ds.Format)
	assert.Equal(t, []string{"tas"}, ds.DataVars())

	tas, ok := ds.Var("tas")
	require.True(t, ok)
	assert.Equal(t, []int64{3, 4}, tas.Shape)
	assert.Equal(t, []string{"lat", "lon"}, tas.Dims)
	assert.Equal(t, "K", tas.Attrs["units"])

	lat, ok := ds.Var("lat")
	require.True(t, ok)
	assert.True(t, lat.Coord)
	assert.Equal(t, []float64{-60, 0, 60}, lat.Values)
}

func TestNetCDFBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testfile.nc")
	writeNetCDF(t, path)

	ds, err := GuessOpener(context.Background(), path, OpenOptions{})
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, [4]float64{-120, -60, 120, 60}, ds.Bounds())
}

func TestNetCDFCloseReleasesHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testfile.nc")
	writeNetCDF(t, path)

	ds, err := GuessOpener(context.Background(), path, OpenOptions{})
	require.NoError(t, err)

	require.NoError(t, ds.Close())
	// Close is idempotent once released
	require.NoError(t, ds.Close())
}
