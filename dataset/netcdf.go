package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/google/uuid"
	"github.com/robert-malhotra/go-hdf5/hdf5"

	"github.com/stratoslab/multidim/storage"
)

// openNetCDF opens a NetCDF4/HDF5 file. Remote objects are staged to a
// temp file first; the handle's Close removes it.
func openNetCDF(ctx context.Context, store storage.Store, loc storage.Locator, opts OpenOptions) (*Dataset, error) {
	path := loc.Prefix
	var cleanup func() error

	if loc.Protocol != storage.ProtocolFile {
		data, err := store.Get(ctx, loc.Prefix)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(os.TempDir(), uuid.NewString()+".nc")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("staging %s: %w", loc, err)
		}
		staged := path
		cleanup = func() error { return os.Remove(staged) }
	}

	f, err := hdf5.Open(path)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("opening netcdf %s: %w", loc, err)
	}

	group := f.Root()
	if opts.Group != "" {
		group, err = f.OpenGroup(opts.Group)
		if err != nil {
			f.Close()
			if cleanup != nil {
				cleanup()
			}
			return nil, fmt.Errorf("opening group %q in %s: %w", opts.Group, loc, err)
		}
	}

	ds := &Dataset{
		Group:       opts.Group,
		DecodeTimes: opts.DecodeTimes,
		Format:      FormatH5NetCDF,
		Dims:        make(map[string]int64),
		Attrs:       hdf5GroupAttrs(group),
	}
	ds.closer = func() error {
		err := f.Close()
		if cleanup != nil {
			if rmErr := cleanup(); err == nil {
				err = rmErr
			}
		}
		return err
	}

	if err := netcdfCatalogue(group, ds); err != nil {
		ds.Close()
		return nil, fmt.Errorf("reading catalogue of %s: %w", loc, err)
	}
	return ds, nil
}

// netcdfCatalogue walks the group members and builds the variable
// catalogue. Dimension scales become coordinate variables; data
// variable axes are named by matching sizes against the scales, which
// covers the common case of distinct dimension lengths.
func netcdfCatalogue(group *hdf5.Group, ds *Dataset) error {
	members, err := group.Members()
	if err != nil {
		return err
	}

	type pending struct {
		v     Variable
		hd    *hdf5.Dataset
		coord bool
	}
	var all []pending

	for _, name := range members {
		hd, err := group.OpenDataset(name)
		if err != nil {
			// Sub-groups are not part of this group's catalogue
			continue
		}

		v := Variable{
			Name:  name,
			DType: hdf5DType(hd),
			Attrs: hdf5DatasetAttrs(hd),
		}
		for _, s := range hd.Shape() {
			v.Shape = append(v.Shape, int64(s))
		}

		coord := false
		if cls, ok := v.Attrs["CLASS"].(string); ok && cls == "DIMENSION_SCALE" {
			coord = true
		}
		all = append(all, pending{v: v, hd: hd, coord: coord})
	}

	// Size -> coordinate name, for naming data variable axes
	sizeToDim := make(map[int64]string)
	for _, p := range all {
		if p.coord && len(p.v.Shape) == 1 {
			sizeToDim[p.v.Shape[0]] = p.v.Name
		}
	}

	for _, p := range all {
		v := p.v
		v.Coord = p.coord

		if p.coord && len(v.Shape) == 1 {
			v.Dims = []string{v.Name}
			if vals, err := hdf5ReadValues(p.hd); err == nil {
				v.Values = vals
			}
		} else {
			for i, s := range v.Shape {
				if dim, ok := sizeToDim[s]; ok {
					v.Dims = append(v.Dims, dim)
				} else {
					v.Dims = append(v.Dims, fmt.Sprintf("phony_dim_%d", i))
				}
			}
		}

		for i, dim := range v.Dims {
			ds.Dims[dim] = v.Shape[i]
		}
		ds.Vars = append(ds.Vars, v)
	}

	if len(ds.Vars) == 0 {
		return fmt.Errorf("no variables found")
	}
	sortVars(ds.Vars)
	return nil
}

// hdf5DType reports the element type as a numpy-style name
func hdf5DType(d *hdf5.Dataset) string {
	t, err := d.GoType()
	if err != nil {
		return "unknown"
	}
	return t.String()
}

// hdf5ReadValues loads a small 1-D dataset as float64s
func hdf5ReadValues(d *hdf5.Dataset) ([]float64, error) {
	t, err := d.GoType()
	if err != nil {
		return nil, err
	}

	switch t.Kind() {
	case reflect.Float64:
		return d.ReadFloat64()
	case reflect.Float32:
		v32, err := d.ReadFloat32()
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(v32))
		for i, x := range v32 {
			vals[i] = float64(x)
		}
		return vals, nil
	case reflect.Int64:
		v64, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(v64))
		for i, x := range v64 {
			vals[i] = float64(x)
		}
		return vals, nil
	case reflect.Int32:
		v32, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(v32))
		for i, x := range v32 {
			vals[i] = float64(x)
		}
		return vals, nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type %s", t)
	}
}

func hdf5GroupAttrs(g *hdf5.Group) map[string]any {
	attrs := make(map[string]any)
	for _, name := range g.Attrs() {
		if a := g.Attr(name); a != nil {
			if v, err := a.Value(); err == nil {
				attrs[name] = normalizeAttr(v)
			}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func hdf5DatasetAttrs(d *hdf5.Dataset) map[string]any {
	attrs := make(map[string]any)
	for _, name := range d.Attrs() {
		if a := d.Attr(name); a != nil {
			if v, err := a.Value(); err == nil {
				attrs[name] = normalizeAttr(v)
			}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// normalizeAttr collapses single-element attribute arrays to scalars,
// matching how attributes round-trip through the cached JSON form
func normalizeAttr(v any) any {
	switch val := v.(type) {
	case []string:
		if len(val) == 1 {
			return val[0]
		}
	case []float64:
		if len(val) == 1 {
			return val[0]
		}
	case []int64:
		if len(val) == 1 {
			return float64(val[0])
		}
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	}
	return v
}
