package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// QuoteHandler handles quote drafting, issue and acceptance
type QuoteHandler struct {
	BaseHandler
	quotes *appledger.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler
func NewQuoteHandler(quotes *appledger.QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// CreateQuote drafts a quote
//
// POST /ledger/quotes
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.CreateQuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quote, err := h.quotes.CreateQuote(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, quote)
}

// GetQuote returns a quote
//
// GET /ledger/quotes/:id
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	quote, err := h.quotes.GetQuote(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// ReviseQuote replaces the snapshot of a draft quote. Issued quotes answer
// IMMUTABILITY_VIOLATION.
//
// PUT /ledger/quotes/:id
func (h *QuoteHandler) ReviseQuote(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.ReviseQuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quote, err := h.quotes.ReviseQuote(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// IssueQuote seals a quote
//
// POST /ledger/quotes/:id/issue
func (h *QuoteHandler) IssueQuote(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.IssueQuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quote, err := h.quotes.IssueQuote(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// AcceptQuote records the client's acceptance of an issued quote
//
// POST /ledger/quotes/:id/accept
func (h *QuoteHandler) AcceptQuote(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.AcceptQuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	acceptance, err := h.quotes.AcceptQuote(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, acceptance)
}
