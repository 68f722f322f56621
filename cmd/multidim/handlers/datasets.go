package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stratoslab/multidim/common/bootstrap"
	"github.com/stratoslab/multidim/dataset"
	"github.com/stratoslab/multidim/reader"
	"github.com/stratoslab/multidim/storage"
)

// DatasetHandler handles dataset introspection operations
type DatasetHandler struct {
	components *bootstrap.Components
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(components *bootstrap.Components) *DatasetHandler {
	return &DatasetHandler{
		components: components,
	}
}

func (h *DatasetHandler) deps() reader.Deps {
	return reader.Deps{
		Config:         h.components.Config,
		Cache:          h.components.Cache,
		Log:            h.components.Logger,
		VersionedStore: h.components.VersionedStore,
	}
}

// GetVariables returns the dataset's data-variable names
// GET /datasets/variables?url=...&group=...&decode_times=true
func (h *DatasetHandler) GetVariables(c echo.Context) error {
	srcPath := c.QueryParam("url")
	if srcPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url query parameter is required")
	}
	group := c.QueryParam("group")
	decodeTimes := queryBool(c, "decode_times", true)

	h.components.Logger.Info("listing variables", "src_path", srcPath, "group", group)
	defer h.components.Telemetry.RecordDuration("list_variables", srcPath, time.Now())

	vars, err := reader.ListVariables(c.Request().Context(), srcPath, group, decodeTimes, h.deps())
	if err != nil {
		return datasetHTTPError(err)
	}

	return c.JSON(http.StatusOK, vars)
}

// GetInfo returns variable metadata, bounds and CRS for one dataset
// GET /datasets/info?url=...&variable=...&group=...&decode_times=true&time=...
func (h *DatasetHandler) GetInfo(c echo.Context) error {
	srcPath := c.QueryParam("url")
	if srcPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url query parameter is required")
	}
	variable := c.QueryParam("variable")
	if variable == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "variable query parameter is required")
	}

	opts := reader.Options{
		SrcPath:     srcPath,
		Group:       c.QueryParam("group"),
		DecodeTimes: queryBool(c, "decode_times", true),
		Variable:    variable,
	}
	if t := c.QueryParam("time"); t != "" {
		opts.Sel = map[string]string{"time": t}
	}

	h.components.Logger.Info("reading dataset info", "src_path", srcPath, "variable", variable)
	defer h.components.Telemetry.RecordDuration("dataset_info", srcPath, time.Now())

	r, err := reader.New(c.Request().Context(), opts, h.deps())
	if err != nil {
		return datasetHTTPError(err)
	}
	defer r.Close()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"variable":   r.Input.Variable.Name,
		"dims":       r.Input.Variable.Dims,
		"shape":      r.Input.Variable.Shape,
		"dtype":      r.Input.Variable.DType,
		"attrs":      r.Input.Variable.Attrs,
		"time_index": r.Input.TimeIndex,
		"bounds":     r.Bounds(),
		"crs":        r.CRS(),
		"format":     r.Dataset.Format,
	})
}

// datasetHTTPError maps the open-pipeline error taxonomy onto HTTP
// responses, distinguishing bad input from backend failure
func datasetHTTPError(err error) error {
	var openErr *dataset.OpenError
	switch {
	case errors.Is(err, storage.ErrUnsupportedProtocol),
		errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrVariableNotFound),
		errors.Is(err, dataset.ErrInvalidTimeSelector):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, dataset.ErrUnauthorizedChunkAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, dataset.ErrVersionedStoreUnavailable):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.As(err, &openErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		// Anything unclassified is a server-side failure, not bad input
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func queryBool(c echo.Context, name string, defaultValue bool) bool {
	if v := c.QueryParam(name); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
