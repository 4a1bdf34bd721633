// Package models contains GORM-specific persistence models that map to ledger tables.
// These models are separate from domain records so the domain layer stays free of ORM concerns.
//
// Every table is keyed by (tenant_id, id). Seal columns travel with each record and are
// written once on insert; repositories never issue updates that touch sealed content.
//
// Structure:
// - base.go: shared key, version and seal columns
// - ledger.go: billable events, approvals, quotes, acceptances, invoices, lines,
//   adjustments, binding events and lineage edges
package models
