package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// TriggerHandler serves the billing triggers: billable events and internal
// approval records
type TriggerHandler struct {
	BaseHandler
	ingestion *appledger.IngestionService
}

// NewTriggerHandler creates a new TriggerHandler
func NewTriggerHandler(ingestion *appledger.IngestionService) *TriggerHandler {
	return &TriggerHandler{ingestion: ingestion}
}

// RecordApproval creates an internal approval record
//
// POST /ledger/approvals
func (h *TriggerHandler) RecordApproval(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.RecordApprovalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	record, err := h.ingestion.RecordApproval(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, record)
}

// GetBillableEvent returns a stored billable event
//
// GET /ledger/billable-events/:id
func (h *TriggerHandler) GetBillableEvent(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	event, err := h.ingestion.GetBillableEvent(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}
