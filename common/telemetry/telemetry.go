package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/stratoslab/multidim/common/logger"
)

// Telemetry holds observability components
type Telemetry struct {
	log       *logger.Logger
	pprofAddr string
}

// New creates telemetry components. A zero pprof port disables the
// profiling endpoint.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	t := &Telemetry{log: log}
	if pprofPort > 0 {
		t.pprofAddr = fmt.Sprintf("localhost:%d", pprofPort)
	}
	return t
}

// Start starts the telemetry endpoints
func (t *Telemetry) Start(ctx context.Context) error {
	if t.pprofAddr == "" {
		return nil
	}

	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof server error", "error", err)
		}
	}()

	return nil
}

// RecordDuration records how long one dataset operation took. Opens
// dominated by storage round trips show up here long before they show
// up in request latency percentiles.
func (t *Telemetry) RecordDuration(operation, srcPath string, start time.Time) {
	t.log.Debug("operation completed",
		"operation", operation,
		"src_path", srcPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
