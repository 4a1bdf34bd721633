package persistence

import (
	"context"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Transient failures roll the transaction back and run fn again when a retrier is set.
type GormTransactionScope struct {
	db      *gorm.DB
	retrier appledger.Retrier
}

// NewGormTransactionScope creates a new GormTransactionScope. retrier may be nil.
func NewGormTransactionScope(db *gorm.DB, retrier appledger.Retrier) *GormTransactionScope {
	return &GormTransactionScope{db: db, retrier: retrier}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	run := func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormTransactionalRepositories{tx: tx})
		})
	}
	if s.retrier == nil {
		return run(ctx)
	}
	return s.retrier.Do(ctx, run)
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Events() ledger.BillableEventRepository {
	return NewGormBillableEventRepository(r.tx)
}

func (r *gormTransactionalRepositories) Approvals() ledger.ApprovalRecordRepository {
	return NewGormApprovalRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) Quotes() ledger.QuoteRepository {
	return NewGormQuoteRepository(r.tx)
}

func (r *gormTransactionalRepositories) Acceptances() ledger.AcceptanceRepository {
	return NewGormAcceptanceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Invoices() ledger.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Adjustments() ledger.AdjustmentRepository {
	return NewGormAdjustmentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Bindings() ledger.BindingRepository {
	return NewGormBindingRepository(r.tx)
}

func (r *gormTransactionalRepositories) Lineage() ledger.LineageIndex {
	return NewGormLineageIndex(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
