package handler

import (
	"net/http"
	"strings"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// PositionSource exposes the ledger snapshot.
type PositionSource interface {
	Positions() []domain.PositionRecord
}

// PositionHandler serves the ledger's view of open positions.
type PositionHandler struct {
	positions PositionSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.PositionRecord `json:"positions"`
	Count     int                     `json:"count"`
}

// ListPositions returns all open positions.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.Positions()
	if positions == nil {
		positions = []domain.PositionRecord{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions, Count: len(positions)})
}

// GetPosition returns the open position for one symbol.
// GET /api/positions/{symbol}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(pathParam(r, "symbol"))
	for _, p := range h.positions.Positions() {
		if p.Symbol == symbol {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no open position for "+symbol)
}
