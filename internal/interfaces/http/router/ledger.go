package router

import (
	"github.com/firmledger/backend/internal/interfaces/http/handler"
	"github.com/firmledger/backend/internal/interfaces/http/middleware"
)

// Handlers bundles the handlers of the ledger API
type Handlers struct {
	Feeds    *handler.FeedHandler
	Triggers *handler.TriggerHandler
	Quotes   *handler.QuoteHandler
	Invoices *handler.InvoiceHandler
	Bindings *handler.BindingHandler
	Lineage  *handler.LineageHandler
	Portal   *handler.PortalHandler
}

// LedgerGroups returns the route groups of the ledger API. Feeds and ledger
// routes are firm-only; the portal accepts client tokens for their own client.
func LedgerGroups(h Handlers) []RouteRegistrar {
	feeds := NewDomainGroup("/feeds").Use(middleware.RequireFirmToken()).
		POST("/billable-events", h.Feeds.IngestBillableEvent).
		POST("/bindings", h.Feeds.ReceiveBinding)

	ledger := NewDomainGroup("/ledger").Use(middleware.RequireFirmToken()).
		POST("/approvals", h.Triggers.RecordApproval).
		GET("/billable-events/:id", h.Triggers.GetBillableEvent).
		POST("/quotes", h.Quotes.CreateQuote).
		GET("/quotes/:id", h.Quotes.GetQuote).
		PUT("/quotes/:id", h.Quotes.ReviseQuote).
		POST("/quotes/:id/issue", h.Quotes.IssueQuote).
		POST("/quotes/:id/accept", h.Quotes.AcceptQuote).
		POST("/invoices", h.Invoices.OpenInvoice).
		GET("/invoices/:id", h.Invoices.GetInvoice).
		POST("/invoices/:id/lines", h.Invoices.GenerateLine).
		POST("/invoices/:id/finalize", h.Invoices.FinalizeInvoice).
		GET("/invoices/:id/seal", h.Invoices.VerifySeal).
		GET("/invoices/:id/adjustments", h.Invoices.ListAdjustments).
		POST("/invoices/:id/adjustments", h.Invoices.AppendAdjustment).
		GET("/invoices/:id/adjustments/verify", h.Invoices.VerifyAdjustments).
		GET("/invoices/:id/lineage", h.Lineage.Trace).
		POST("/bindings", h.Bindings.Bind).
		GET("/bindings/:id", h.Bindings.GetBinding).
		POST("/bindings/:id/rebind", h.Bindings.Rebind).
		POST("/lineage/rebuild", h.Lineage.Rebuild)

	portal := NewDomainGroup("/portal").
		GET("/clients/:client_id/artifacts", middleware.RequireClientScope("client_id"), h.Portal.ListArtifacts)

	return []RouteRegistrar{feeds, ledger, portal}
}
