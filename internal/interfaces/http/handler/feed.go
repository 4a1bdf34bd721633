package handler

import (
	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// FeedHandler receives the collaborator feeds: approved billable events from
// project management and binding deliveries from document management
type FeedHandler struct {
	BaseHandler
	ingestion *appledger.IngestionService
	bindings  *appledger.BindingService
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(ingestion *appledger.IngestionService, bindings *appledger.BindingService) *FeedHandler {
	return &FeedHandler{ingestion: ingestion, bindings: bindings}
}

// IngestBillableEvent stores an approved billable event.
// A first delivery answers 201; a replay of a stored event answers 200 with the
// stored record.
//
// POST /feeds/billable-events
func (h *FeedHandler) IngestBillableEvent(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appledger.IngestBillableEventRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.ingestion.Ingest(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// ReceiveBinding applies one binding feed delivery. Redelivered ids answer 200
// with the binding stored by the first delivery.
//
// POST /feeds/bindings
func (h *FeedHandler) ReceiveBinding(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var event appledger.DMSBindingFeedEvent
	if !h.BindJSON(c, &event) {
		return
	}

	result, err := h.bindings.ReceiveFeed(c.Request.Context(), tenantID, event)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Redelivered {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}
