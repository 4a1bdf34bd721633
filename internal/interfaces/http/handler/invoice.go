package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoices, their lines and their adjustments
type InvoiceHandler struct {
	BaseHandler
	invoices    *appledger.InvoiceService
	adjustments *appledger.AdjustmentService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices *appledger.InvoiceService, adjustments *appledger.AdjustmentService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, adjustments: adjustments}
}

// OpenInvoice opens a draft invoice against an acceptance
//
// POST /ledger/invoices
func (h *InvoiceHandler) OpenInvoice(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.OpenInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	invoice, err := h.invoices.OpenInvoice(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// GetInvoice returns an invoice with its lines
//
// GET /ledger/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	invoice, err := h.invoices.GetInvoice(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// GenerateLine adds the line of one trigger to a draft invoice. A trigger that
// already produced a line answers DUPLICATE_TRIGGER.
//
// POST /ledger/invoices/:id/lines
func (h *InvoiceHandler) GenerateLine(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.GenerateLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	line, err := h.invoices.GenerateLine(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, line)
}

// FinalizeInvoice seals a draft invoice
//
// POST /ledger/invoices/:id/finalize
func (h *InvoiceHandler) FinalizeInvoice(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.FinalizeInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	invoice, err := h.invoices.FinalizeInvoice(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// VerifySeal recomputes the content hash of a finalized invoice
//
// GET /ledger/invoices/:id/seal
func (h *InvoiceHandler) VerifySeal(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	result, err := h.invoices.VerifyInvoiceSeal(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AppendAdjustment records a correction against an invoice or one of its lines
//
// POST /ledger/invoices/:id/adjustments
func (h *InvoiceHandler) AppendAdjustment(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.AppendAdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	adjustment, err := h.adjustments.AppendAdjustment(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, adjustment)
}

// ListAdjustments returns the adjustment chain with original and net totals
//
// GET /ledger/invoices/:id/adjustments
func (h *InvoiceHandler) ListAdjustments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	list, err := h.adjustments.ListAdjustments(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// VerifyAdjustments recomputes the hash links of the adjustment chain
//
// GET /ledger/invoices/:id/adjustments/verify
func (h *InvoiceHandler) VerifyAdjustments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	result, err := h.adjustments.VerifyAdjustmentChain(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
