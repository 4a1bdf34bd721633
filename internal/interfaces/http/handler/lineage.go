package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// LineageHandler serves invoice lineage
type LineageHandler struct {
	BaseHandler
	lineage *appledger.LineageService
}

// NewLineageHandler creates a new LineageHandler
func NewLineageHandler(lineage *appledger.LineageService) *LineageHandler {
	return &LineageHandler{lineage: lineage}
}

// Trace resolves the lineage of an invoice. An inconsistent lineage answers 409
// with the partial graph and its faults in data.
//
// GET /ledger/invoices/:id/lineage
func (h *LineageHandler) Trace(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	graph, err := h.lineage.Trace(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if graph != nil {
			h.HandleErrorWithData(c, err, graph)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, graph)
}

// Rebuild derives the firm's lineage index again from its primary records
//
// POST /ledger/lineage/rebuild
func (h *LineageHandler) Rebuild(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	result, err := h.lineage.Rebuild(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
