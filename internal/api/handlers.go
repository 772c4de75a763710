package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

const readTimeout = 50 * time.Second

// SnapshotSource yields the snapshot readers should see. Implementations may
// block while a refresh runs, bounded by ctx.
type SnapshotSource interface {
	Current(ctx context.Context) (stock.Published, error)
}

// StockHandler serves the snapshot and its sections.
type StockHandler struct {
	source  SnapshotSource
	timeout time.Duration
	logger  *zap.Logger
}

// NewStockHandler wires the snapshot source and logger.
func NewStockHandler(source SnapshotSource, logger *zap.Logger) *StockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockHandler{
		source:  source,
		timeout: readTimeout,
		logger:  logger,
	}
}

// Snapshot handles GET /. It returns all three sections plus fetched_at, or
// {"error": ...} with status 200 while nothing has been published.
func (h *StockHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	published, ok := h.current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, published)
}

// Section returns a handler serving the bare section object for category,
// or {} when the snapshot has no such section.
func (h *StockHandler) Section(category stock.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		published, ok := h.current(w, r)
		if !ok {
			return
		}
		section, found := published.Section(category)
		if !found {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		writeJSON(w, http.StatusOK, section)
	}
}

func (h *StockHandler) current(w http.ResponseWriter, r *http.Request) (stock.Published, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	published, err := h.source.Current(ctx)
	if err != nil {
		h.logger.Debug("snapshot unavailable",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusOK, err.Error())
		return stock.Published{}, false
	}
	return published, true
}
