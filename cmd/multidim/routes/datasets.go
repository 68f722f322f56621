package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/stratoslab/multidim/cmd/multidim/handlers"
	"github.com/stratoslab/multidim/common/bootstrap"
)

// RegisterDatasetRoutes registers the dataset introspection endpoints
func RegisterDatasetRoutes(e *echo.Echo, components *bootstrap.Components) {
	h := handlers.NewDatasetHandler(components)

	datasets := e.Group("/datasets")
	datasets.GET("/variables", h.GetVariables)
	datasets.GET("/info", h.GetInfo)
}
