package dataset

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stratoslab/multidim/storage"
)

// discoveryLimit bounds the listing used to find arrays in stores
// without consolidated metadata
const discoveryLimit = 2000

// openZarr reads a zarr hierarchy (v2 or v3, consolidated or not)
// through the store and materializes the handle. It never touches chunk
// payloads except for small single-chunk coordinate arrays.
func openZarr(ctx context.Context, store storage.Store, root string, opts OpenOptions) (*Dataset, error) {
	if opts.Group != "" {
		root = root + "/" + strings.Trim(opts.Group, "/")
	}

	ds := &Dataset{
		Group:       opts.Group,
		DecodeTimes: opts.DecodeTimes,
		Format:      FormatZarr,
		Dims:        make(map[string]int64),
	}

	// Consolidated v2 metadata answers everything in one read
	if raw, err := store.Get(ctx, root+"/.zmetadata"); err == nil {
		if err := zarrFromConsolidated(ctx, store, root, raw, ds); err != nil {
			return nil, err
		}
		return ds, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// v3 root group
	if raw, err := store.Get(ctx, root+"/zarr.json"); err == nil {
		ds.Attrs = jsonToMap(gjson.GetBytes(raw, "attributes"))
		if err := zarrDiscoverV3(ctx, store, root, ds); err != nil {
			return nil, err
		}
		return ds, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Unconsolidated v2
	if raw, err := store.Get(ctx, root+"/.zattrs"); err == nil {
		ds.Attrs = jsonToMap(gjson.ParseBytes(raw))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err := zarrDiscoverV2(ctx, store, root, ds); err != nil {
		return nil, err
	}
	if len(ds.Vars) == 0 {
		return nil, fmt.Errorf("no zarr arrays under %s", root)
	}
	return ds, nil
}

// zarrFromConsolidated builds the catalogue from a .zmetadata document
func zarrFromConsolidated(ctx context.Context, store storage.Store, root string, raw []byte, ds *Dataset) error {
	meta := gjson.GetBytes(raw, "metadata")
	if !meta.Exists() {
		return fmt.Errorf("malformed .zmetadata under %s", root)
	}

	ds.Attrs = jsonToMap(meta.Get(`\.zattrs`))

	var err error
	meta.ForEach(func(key, value gjson.Result) bool {
		name, found := strings.CutSuffix(key.String(), "/.zarray")
		if !found || strings.Contains(name, "/") {
			return true
		}
		attrs := jsonToMap(meta.Get(escapeGjson(name + "/.zattrs")))
		v, verr := zarrV2Variable(name, value, attrs)
		if verr != nil {
			err = verr
			return false
		}
		zarrFinishVariable(ctx, store, root, &v, ds)
		return true
	})
	if err != nil {
		return err
	}
	if len(ds.Vars) == 0 {
		return fmt.Errorf("no zarr arrays under %s", root)
	}
	sortVars(ds.Vars)
	return nil
}

// zarrDiscoverV2 finds arrays by listing for .zarray documents
func zarrDiscoverV2(ctx context.Context, store storage.Store, root string, ds *Dataset) error {
	keys, err := store.List(ctx, root+"/", discoveryLimit)
	if err != nil {
		return err
	}

	for _, key := range keys {
		rel := strings.TrimPrefix(key, root+"/")
		name, found := strings.CutSuffix(rel, "/.zarray")
		if !found || strings.Contains(name, "/") {
			continue
		}
		raw, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		var attrs map[string]any
		if rawAttrs, err := store.Get(ctx, root+"/"+name+"/.zattrs"); err == nil {
			attrs = jsonToMap(gjson.ParseBytes(rawAttrs))
		}
		v, err := zarrV2Variable(name, gjson.ParseBytes(raw), attrs)
		if err != nil {
			return err
		}
		zarrFinishVariable(ctx, store, root, &v, ds)
	}
	sortVars(ds.Vars)
	return nil
}

// zarrDiscoverV3 finds arrays by listing for nested zarr.json documents
func zarrDiscoverV3(ctx context.Context, store storage.Store, root string, ds *Dataset) error {
	keys, err := store.List(ctx, root+"/", discoveryLimit)
	if err != nil {
		return err
	}

	for _, key := range keys {
		rel := strings.TrimPrefix(key, root+"/")
		name, found := strings.CutSuffix(rel, "/zarr.json")
		if !found || strings.Contains(name, "/") {
			continue
		}
		raw, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		doc := gjson.ParseBytes(raw)
		if doc.Get("node_type").String() != "array" {
			continue
		}
		v := zarrV3Variable(name, doc)
		zarrFinishVariable(ctx, store, root, &v, ds)
	}
	if len(ds.Vars) == 0 {
		return fmt.Errorf("no zarr arrays under %s", root)
	}
	sortVars(ds.Vars)
	return nil
}

// zarrV2Variable parses one .zarray document
func zarrV2Variable(name string, doc gjson.Result, attrs map[string]any) (Variable, error) {
	v := Variable{
		Name:  name,
		DType: doc.Get("dtype").String(),
		Attrs: attrs,
	}
	for _, s := range doc.Get("shape").Array() {
		v.Shape = append(v.Shape, s.Int())
	}
	for _, c := range doc.Get("chunks").Array() {
		v.Chunks = append(v.Chunks, c.Int())
	}

	if dims, ok := attrs["_ARRAY_DIMENSIONS"].([]any); ok {
		for _, d := range dims {
			if s, ok := d.(string); ok {
				v.Dims = append(v.Dims, s)
			}
		}
	}
	if len(v.Dims) != len(v.Shape) {
		return v, fmt.Errorf("array %q: %d dimension names for %d axes", name, len(v.Dims), len(v.Shape))
	}
	return v, nil
}

// zarrV3Variable parses one v3 array zarr.json document
func zarrV3Variable(name string, doc gjson.Result) Variable {
	v := Variable{
		Name:  name,
		DType: doc.Get("data_type").String(),
		Attrs: jsonToMap(doc.Get("attributes")),
	}
	for _, s := range doc.Get("shape").Array() {
		v.Shape = append(v.Shape, s.Int())
	}
	for _, c := range doc.Get("chunk_grid.configuration.chunk_shape").Array() {
		v.Chunks = append(v.Chunks, c.Int())
	}
	for _, d := range doc.Get("dimension_names").Array() {
		v.Dims = append(v.Dims, d.String())
	}
	// Fall back to positional names when the store has none
	for len(v.Dims) < len(v.Shape) {
		v.Dims = append(v.Dims, fmt.Sprintf("dim_%d", len(v.Dims)))
	}
	return v
}

// zarrFinishVariable registers dims, marks coordinates and loads small
// coordinate values
func zarrFinishVariable(ctx context.Context, store storage.Store, root string, v *Variable, ds *Dataset) {
	for i, dim := range v.Dims {
		ds.Dims[dim] = v.Shape[i]
	}

	v.Coord = len(v.Dims) == 1 && v.Dims[0] == v.Name
	if v.Coord && len(v.Chunks) == 1 && v.Chunks[0] >= v.Shape[0] {
		if vals, err := readZarrCoord(ctx, store, root, *v); err == nil {
			v.Values = vals
		}
	}

	ds.Vars = append(ds.Vars, *v)
}

// readZarrCoord fetches and decodes the single chunk of a 1-D
// coordinate array. Unsupported codecs are not an error; the caller
// just loses label selection and exact bounds for that axis.
func readZarrCoord(ctx context.Context, store storage.Store, root string, v Variable) ([]float64, error) {
	var data []byte
	var err error
	if data, err = store.Get(ctx, root+"/"+v.Name+"/0"); err != nil {
		// v3 layout
		if data, err = store.Get(ctx, root+"/"+v.Name+"/c/0"); err != nil {
			return nil, err
		}
	}

	data, err = decompressChunk(data, v.Attrs)
	if err != nil {
		return nil, err
	}
	return decodeNumeric(data, v.DType, int(v.Shape[0]))
}

// decompressChunk undoes zlib or gzip compression when the array
// metadata declares one; raw chunks pass through
func decompressChunk(data []byte, attrs map[string]any) ([]byte, error) {
	codec := ""
	if comp, ok := attrs["compressor"].(map[string]any); ok {
		codec, _ = comp["id"].(string)
	}

	var r io.Reader
	var err error
	switch codec {
	case "":
		// Guess from magic bytes: v3 metadata keeps codecs elsewhere
		if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
			r, err = gzip.NewReader(bytes.NewReader(data))
		} else if len(data) > 2 && data[0] == 0x78 {
			r, err = zlib.NewReader(bytes.NewReader(data))
		} else {
			return data, nil
		}
	case "zlib":
		r, err = zlib.NewReader(bytes.NewReader(data))
	case "gzip":
		r, err = gzip.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported compressor %q", codec)
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// decodeNumeric turns raw little-endian chunk bytes into float64s
func decodeNumeric(data []byte, dtype string, n int) ([]float64, error) {
	if strings.HasPrefix(dtype, ">") {
		return nil, fmt.Errorf("big-endian dtype %q not supported", dtype)
	}

	vals := make([]float64, 0, n)
	r := bytes.NewReader(data)
	read := func(size int, conv func([]byte) float64) error {
		buf := make([]byte, size)
		for len(vals) < n {
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			vals = append(vals, conv(buf))
		}
		return nil
	}

	var err error
	switch strings.TrimPrefix(strings.TrimPrefix(dtype, "<"), "|") {
	case "f8", "float64":
		err = read(8, func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) })
	case "f4", "float32":
		err = read(4, func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) })
	case "i8", "int64":
		err = read(8, func(b []byte) float64 { return float64(int64(binary.LittleEndian.Uint64(b))) })
	case "i4", "int32":
		err = read(4, func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) })
	case "i2", "int16":
		err = read(2, func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) })
	default:
		return nil, fmt.Errorf("dtype %q not supported for coordinate decode", dtype)
	}
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// jsonToMap converts a gjson node into plain Go maps
func jsonToMap(res gjson.Result) map[string]any {
	if !res.Exists() || !res.IsObject() {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Raw), &m); err != nil {
		return nil
	}
	return m
}

// escapeGjson escapes path separators in literal keys
func escapeGjson(key string) string {
	key = strings.ReplaceAll(key, ".", `\.`)
	return key
}
