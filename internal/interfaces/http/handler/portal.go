package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// PortalHandler serves the client portal projection
type PortalHandler struct {
	BaseHandler
	portal *appledger.PortalService
}

// NewPortalHandler creates a new PortalHandler
func NewPortalHandler(portal *appledger.PortalService) *PortalHandler {
	return &PortalHandler{portal: portal}
}

// ListArtifacts returns what the client may see: its finalized invoices and its
// active client-facing documents. Client scope is enforced by middleware before
// this runs.
//
// GET /portal/clients/:client_id/artifacts
func (h *PortalHandler) ListArtifacts(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	artifacts, err := h.portal.ProjectForClient(c.Request.Context(), tenantID, c.Param("client_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, artifacts)
}
