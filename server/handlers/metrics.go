package handlers

import (
	"log/slog"
	"net/http"

	"github.com/nomis52/countbridge/counters"
	"github.com/nomis52/countbridge/render"
)

// MetricsHandler serves counters in the Prometheus text format.
type MetricsHandler struct {
	logger *slog.Logger
	read   func() counters.Snapshot
	opts   render.Options
}

// NewMetricsHandler creates a handler that serves the current counters
// without clearing them.
func NewMetricsHandler(logger *slog.Logger, source SnapshotSource, opts render.Options) *MetricsHandler {
	return &MetricsHandler{logger: logger, read: source.ReadAll, opts: opts}
}

// NewMetricsAndResetHandler creates a handler that serves the current
// counters and clears them.
func NewMetricsAndResetHandler(logger *slog.Logger, source SnapshotSource, opts render.Options) *MetricsHandler {
	return &MetricsHandler{logger: logger, read: source.ReadAndReset, opts: opts}
}

// ServeHTTP implements http.Handler. A failure while rendering yields an
// empty body rather than an error status.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", render.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.body()))
}

func (h *MetricsHandler) body() (body string) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("failed to render counters", "panic", p)
			body = ""
		}
	}()
	return render.Text(h.read(), h.opts)
}
