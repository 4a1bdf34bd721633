package ledger

import (
	"context"

	"github.com/firmledger/backend/internal/domain/ledger"
)

// TransactionScope provides transactional access to the ledger repositories.
// Every repository handed to fn shares one database transaction, which commits
// when fn returns nil and rolls back otherwise.
//
// Implementations may run fn more than once when the store reports a transient
// failure, so fn must load the state it works on instead of closing over it.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
//
// Write ownership:
//   - Events, Approvals: IngestionService
//   - Quotes, Acceptances: QuoteService
//   - Invoices: InvoiceService (lines are children of the invoice aggregate)
//   - Adjustments: AdjustmentService
//   - Bindings: BindingService
//   - Lineage: LineageProjector and LineageService.Rebuild only
type TransactionalRepositories interface {
	Events() ledger.BillableEventRepository
	Approvals() ledger.ApprovalRecordRepository
	Quotes() ledger.QuoteRepository
	Acceptances() ledger.AcceptanceRepository
	Invoices() ledger.InvoiceRepository
	Adjustments() ledger.AdjustmentRepository
	Bindings() ledger.BindingRepository
	Lineage() ledger.LineageIndex
}

// Retrier re-runs an operation that failed because of a transient storage condition
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// NoOpTransactionScope runs fn directly against the given repositories.
// It is used in tests and by stores that are atomic per call.
type NoOpTransactionScope struct {
	Repos TransactionalRepositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(repos TransactionalRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{Repos: repos}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.Repos)
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
