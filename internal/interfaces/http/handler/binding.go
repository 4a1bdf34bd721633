package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// BindingHandler handles firm-initiated document bindings
type BindingHandler struct {
	BaseHandler
	bindings *appledger.BindingService
}

// NewBindingHandler creates a new BindingHandler
func NewBindingHandler(bindings *appledger.BindingService) *BindingHandler {
	return &BindingHandler{bindings: bindings}
}

// Bind binds a business artifact to an immutable document
//
// POST /ledger/bindings
func (h *BindingHandler) Bind(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.BindRequest
	if !h.BindJSON(c, &req) {
		return
	}
	binding, err := h.bindings.Bind(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, binding)
}

// GetBinding returns a binding event
//
// GET /ledger/bindings/:id
func (h *BindingHandler) GetBinding(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	binding, err := h.bindings.GetBinding(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, binding)
}

// Rebind supersedes an active binding with a new document. The old event is
// kept and linked to its successor.
//
// POST /ledger/bindings/:id/rebind
func (h *BindingHandler) Rebind(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.RebindRequest
	if !h.BindJSON(c, &req) {
		return
	}
	binding, err := h.bindings.Rebind(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, binding)
}
