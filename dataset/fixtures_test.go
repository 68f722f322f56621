package dataset

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratoslab/multidim/storage"
)

// testDataVars matches the variable set of the reference stores
var testDataVars = []string{"pr", "tas", "tasmax", "tasmin"}

func writeFixtureFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func float64Bytes(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func zarrV2Array(shape []int64, dims []string, extra map[string]any) (zarray, zattrs string) {
	chunks, _ := json.Marshal(shape)
	shapeJSON, _ := json.Marshal(shape)
	zarray = fmt.Sprintf(`{"zarr_format":2,"shape":%s,"chunks":%s,"dtype":"<f8","compressor":null,"fill_value":"NaN","order":"C","filters":null}`,
		shapeJSON, chunks)

	attrs := map[string]any{"_ARRAY_DIMENSIONS": dims}
	for k, v := range extra {
		attrs[k] = v
	}
	attrsJSON, _ := json.Marshal(attrs)
	return zarray, string(attrsJSON)
}

// timeAttrs is the CF units attribute carried by the time coordinate
// of the reference stores
var timeAttrs = map[string]any{"units": "days since 1970-01-01"}

// writeZarrV2 lays out a v2 store with time/lat/lon coordinates and the
// four reference data variables. Consolidated metadata is optional.
func writeZarrV2(t *testing.T, root string, consolidated bool) {
	t.Helper()

	coords := map[string][]float64{
		"time": {0, 1},
		"lat":  {-60, 0, 60},
		"lon":  {-120, -40, 40, 120},
	}

	metadata := map[string]json.RawMessage{
		".zgroup": json.RawMessage(`{"zarr_format":2}`),
		".zattrs": json.RawMessage(`{"title":"reference store"}`),
	}

	addArray := func(name string, shape []int64, dims []string, extra map[string]any) {
		zarray, zattrs := zarrV2Array(shape, dims, extra)
		metadata[name+"/.zarray"] = json.RawMessage(zarray)
		metadata[name+"/.zattrs"] = json.RawMessage(zattrs)
		if !consolidated {
			writeFixtureFile(t, filepath.Join(root, name, ".zarray"), []byte(zarray))
			writeFixtureFile(t, filepath.Join(root, name, ".zattrs"), []byte(zattrs))
		}
	}

	for name, vals := range coords {
		var extra map[string]any
		if name == "time" {
			extra = timeAttrs
		}
		addArray(name, []int64{int64(len(vals))}, []string{name}, extra)
		writeFixtureFile(t, filepath.Join(root, name, "0"), float64Bytes(vals))
	}
	for _, name := range testDataVars {
		addArray(name, []int64{2, 3, 4}, []string{"time", "lat", "lon"}, nil)
	}

	if consolidated {
		doc, err := json.Marshal(map[string]any{
			"zarr_consolidated_format": 1,
			"metadata":                 metadata,
		})
		require.NoError(t, err)
		writeFixtureFile(t, filepath.Join(root, ".zmetadata"), doc)
	} else {
		writeFixtureFile(t, filepath.Join(root, ".zgroup"), []byte(`{"zarr_format":2}`))
		writeFixtureFile(t, filepath.Join(root, ".zattrs"), []byte(`{"title":"reference store"}`))
	}
}

// writeZarrV3 lays out a v3 store with the same content
func writeZarrV3(t *testing.T, root string) {
	t.Helper()

	writeFixtureFile(t, filepath.Join(root, "zarr.json"),
		[]byte(`{"zarr_format":3,"node_type":"group","attributes":{"title":"reference store"}}`))

	addArray := func(name string, shape []int64, dims []string, extra map[string]any) {
		shapeJSON, _ := json.Marshal(shape)
		dimsJSON, _ := json.Marshal(dims)
		if extra == nil {
			extra = map[string]any{}
		}
		attrsJSON, _ := json.Marshal(extra)
		doc := fmt.Sprintf(`{"zarr_format":3,"node_type":"array","shape":%s,"data_type":"float64","chunk_grid":{"name":"regular","configuration":{"chunk_shape":%s}},"dimension_names":%s,"attributes":%s,"codecs":[{"name":"bytes","configuration":{"endian":"little"}}]}`,
			shapeJSON, shapeJSON, dimsJSON, attrsJSON)
		writeFixtureFile(t, filepath.Join(root, name, "zarr.json"), []byte(doc))
	}

	coords := map[string][]float64{
		"time": {0, 1},
		"lat":  {-60, 0, 60},
		"lon":  {-120, -40, 40, 120},
	}
	for name, vals := range coords {
		var extra map[string]any
		if name == "time" {
			extra = timeAttrs
		}
		addArray(name, []int64{int64(len(vals))}, []string{name}, extra)
		writeFixtureFile(t, filepath.Join(root, name, "c", "0"), float64Bytes(vals))
	}
	for _, name := range testDataVars {
		addArray(name, []int64{2, 3, 4}, []string{"time", "lat", "lon"}, nil)
	}
}

// fakeStore serves an in-memory key space, recording every call, to
// prove detection depends only on listing results
type fakeStore struct {
	keys  map[string][]byte
	calls []string
}

func newFakeStore(keys map[string][]byte) *fakeStore {
	return &fakeStore{keys: keys}
}

func (s *fakeStore) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	s.calls = append(s.calls, "list "+prefix)
	var out []string
	for key := range s.keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.calls = append(s.calls, "get "+key)
	data, ok := s.keys[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}
