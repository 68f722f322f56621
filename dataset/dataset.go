// Package dataset implements the dataset-access pipeline: storage
// format identification, per-format openers, and the opener dispatcher.
// A Dataset is the opened, in-memory representation of a store: its
// dimensional axes, variable catalogue, chunk references and spatial
// metadata. It is mutated only during construction and treated as
// immutable afterwards.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Variable describes one array in the catalogue
type Variable struct {
	Name   string         `json:"name"`
	Dims   []string       `json:"dims"`
	Shape  []int64        `json:"shape"`
	DType  string         `json:"dtype"`
	Chunks []int64        `json:"chunks,omitempty"`
	Attrs  map[string]any `json:"attrs,omitempty"`
	// Coord marks dimension/coordinate variables, which are excluded
	// from the data-variable catalogue
	Coord bool `json:"coord,omitempty"`
	// Values holds decoded values for small 1-D coordinate variables,
	// used for bounds derivation and label-based selection
	Values []float64 `json:"values,omitempty"`
}

// Dataset is an opened dataset handle
type Dataset struct {
	SrcPath     string           `json:"src_path"`
	Group       string           `json:"group,omitempty"`
	DecodeTimes bool             `json:"decode_times"`
	Format      Format           `json:"format"`
	Dims        map[string]int64 `json:"dims"`
	Vars        []Variable       `json:"vars"`
	Attrs       map[string]any   `json:"attrs,omitempty"`

	closer func() error
}

// DataArray is the view over one selected variable, handed to the
// rendering layer together with bounds and CRS
type DataArray struct {
	Variable Variable          `json:"variable"`
	Sel      map[string]string `json:"sel,omitempty"`
	// TimeIndex is the resolved position along the time axis when the
	// selector named one, -1 otherwise
	TimeIndex int `json:"time_index"`
}

// Close releases the underlying file or network handles. Safe to call
// on handles deserialized from cache, which hold none.
func (d *Dataset) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer()
	d.closer = nil
	return err
}

// DataVars returns the ordered data-variable names, coordinates
// excluded
func (d *Dataset) DataVars() []string {
	names := make([]string, 0, len(d.Vars))
	for _, v := range d.Vars {
		if !v.Coord {
			names = append(names, v.Name)
		}
	}
	return names
}

// Var looks up a variable by name
func (d *Dataset) Var(name string) (Variable, bool) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// SelectVariable picks the named data variable and applies the optional
// coordinate selector. Label selectors resolve against stored
// coordinate values; a time selector resolves to the nearest stored
// timestamp when decode_times is on.
func (d *Dataset) SelectVariable(name string, sel map[string]string) (*DataArray, error) {
	v, ok := d.Var(name)
	if !ok {
		return nil, fmt.Errorf("variable %q not found, have %v: %w", name, d.DataVars(), ErrVariableNotFound)
	}

	da := &DataArray{
		Variable:  v,
		Sel:       sel,
		TimeIndex: -1,
	}

	if t, ok := sel["time"]; ok {
		idx, err := d.resolveTime(v, t)
		if err != nil {
			return nil, err
		}
		da.TimeIndex = idx
	}

	return da, nil
}

// resolveTime maps a time label onto an index along the variable's time
// axis
func (d *Dataset) resolveTime(v Variable, label string) (int, error) {
	timeDim := ""
	for _, dim := range v.Dims {
		if dim == "time" || dim == "t" {
			timeDim = dim
			break
		}
	}
	if timeDim == "" {
		return 0, fmt.Errorf("variable %q has no time dimension: %w", v.Name, ErrInvalidTimeSelector)
	}

	coord, ok := d.Var(timeDim)
	if !ok || len(coord.Values) == 0 {
		return 0, fmt.Errorf("no time coordinate values for %q: %w", timeDim, ErrInvalidTimeSelector)
	}

	want, err := parseTimeLabel(label)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimeSelector, err)
	}

	if !d.DecodeTimes {
		return 0, fmt.Errorf("time selection requires decode_times: %w", ErrInvalidTimeSelector)
	}

	units, _ := coord.Attrs["units"].(string)
	times, err := decodeTimeAxis(units, coord.Values)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimeSelector, err)
	}

	// Nearest match
	best, bestDelta := 0, math.MaxFloat64
	for i, ts := range times {
		delta := math.Abs(ts.Sub(want).Seconds())
		if delta < bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best, nil
}

// Bounds derives the [west, south, east, north] extent from coordinate
// values, falling back to ACDD attributes and finally the global
// extent
func (d *Dataset) Bounds() [4]float64 {
	lon, lonOK := d.coordRange("lon", "longitude", "x")
	lat, latOK := d.coordRange("lat", "latitude", "y")
	if lonOK && latOK {
		return [4]float64{lon[0], lat[0], lon[1], lat[1]}
	}

	if b, ok := d.attrBounds(); ok {
		return b
	}

	return [4]float64{-180, -90, 180, 90}
}

// CRS returns the coordinate reference system, defaulting to geographic
func (d *Dataset) CRS() string {
	for _, key := range []string{"crs", "spatial_ref", "proj:epsg"} {
		if v, ok := d.Attrs[key]; ok {
			switch val := v.(type) {
			case string:
				if val != "" {
					return val
				}
			case float64:
				return fmt.Sprintf("EPSG:%d", int(val))
			}
		}
	}
	return "EPSG:4326"
}

func (d *Dataset) coordRange(names ...string) ([2]float64, bool) {
	for _, name := range names {
		v, ok := d.Var(name)
		if !ok || len(v.Values) == 0 {
			continue
		}
		lo, hi := v.Values[0], v.Values[0]
		for _, x := range v.Values {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		return [2]float64{lo, hi}, true
	}
	return [2]float64{}, false
}

func (d *Dataset) attrBounds() ([4]float64, bool) {
	get := func(key string) (float64, bool) {
		v, ok := d.Attrs[key].(float64)
		return v, ok
	}
	w, ok1 := get("geospatial_lon_min")
	s, ok2 := get("geospatial_lat_min")
	e, ok3 := get("geospatial_lon_max")
	n, ok4 := get("geospatial_lat_max")
	if ok1 && ok2 && ok3 && ok4 {
		return [4]float64{w, s, e, n}, true
	}
	return [4]float64{}, false
}

// Marshal serializes the handle for the shared cache. The payload is
// the fully materialized handle, chunk references included, so a cache
// hit skips every metadata read against storage.
func (d *Dataset) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal restores a handle from its cached form
func Unmarshal(data []byte) (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding cached dataset: %w", err)
	}
	return &d, nil
}

// sortVars keeps the catalogue deterministic across opens, which the
// idempotence of the dispatcher depends on
func sortVars(vars []Variable) {
	sort.SliceStable(vars, func(i, j int) bool {
		return vars[i].Name < vars[j].Name
	})
}

// parseTimeLabel accepts RFC3339 or plain dates
func parseTimeLabel(label string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, label); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time label %q", label)
}

// decodeTimeAxis interprets CF-style time units ("days since
// 1970-01-01") over raw coordinate values
func decodeTimeAxis(units string, values []float64) ([]time.Time, error) {
	unit, origin, found := strings.Cut(units, " since ")
	if !found {
		return nil, fmt.Errorf("unparseable time units %q", units)
	}

	epoch, err := parseTimeLabel(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("unparseable time origin in %q: %w", units, err)
	}

	var step time.Duration
	switch strings.TrimSpace(unit) {
	case "seconds":
		step = time.Second
	case "minutes":
		step = time.Minute
	case "hours":
		step = time.Hour
	case "days":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported time unit in %q", units)
	}

	times := make([]time.Time, len(values))
	for i, v := range values {
		times[i] = epoch.Add(time.Duration(v * float64(step)))
	}
	return times, nil
}
