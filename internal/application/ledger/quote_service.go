package ledger

import (
	"context"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteService manages quotes up to issuance and records their acceptance
type QuoteService struct {
	serviceBase
}

// NewQuoteService creates a new QuoteService
func NewQuoteService(cfg ServiceConfig) *QuoteService {
	return &QuoteService{serviceBase: newServiceBase(cfg, "quote")}
}

// CreateQuote creates a draft quote
func (s *QuoteService) CreateQuote(ctx context.Context, tenantID uuid.UUID, req CreateQuoteRequest) (*QuoteResponse, error) {
	q, err := ledger.NewQuote(tenantID, req.ClientID, req.EngagementID, req.Currency, req.Snapshot, req.CreatedBy, s.now())
	if err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Quotes().Create(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Quote created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("quote_id", q.ID.String()))
	resp := ToQuoteResponse(q)
	return &resp, nil
}

// GetQuote returns a quote
func (s *QuoteService) GetQuote(ctx context.Context, tenantID uuid.UUID, id string) (*QuoteResponse, error) {
	quoteID, err := shared.ParseID(shared.KindQuote, id)
	if err != nil {
		return nil, err
	}
	var q *ledger.Quote
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		q, err = repos.Quotes().FindByID(ctx, tenantID, quoteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := ToQuoteResponse(q)
	return &resp, nil
}

// ReviseQuote replaces the snapshot of a draft quote. An issued quote is sealed.
func (s *QuoteService) ReviseQuote(ctx context.Context, tenantID uuid.UUID, id string, req ReviseQuoteRequest) (*QuoteResponse, error) {
	quoteID, err := shared.ParseID(shared.KindQuote, id)
	if err != nil {
		return nil, err
	}
	var q *ledger.Quote
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		q, err = repos.Quotes().FindByID(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		expected := q.Version
		if err := q.Revise(req.Snapshot, s.now()); err != nil {
			return err
		}
		return repos.Quotes().Update(ctx, q, expected)
	})
	if err != nil {
		s.observe(ctx, tenantID, err)
		return nil, err
	}
	resp := ToQuoteResponse(q)
	return &resp, nil
}

// IssueQuote freezes a quote
func (s *QuoteService) IssueQuote(ctx context.Context, tenantID uuid.UUID, id string, req IssueQuoteRequest) (*QuoteResponse, error) {
	quoteID, err := shared.ParseID(shared.KindQuote, id)
	if err != nil {
		return nil, err
	}
	var q *ledger.Quote
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		q, err = repos.Quotes().FindByID(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		expected := q.Version
		if err := q.Issue(req.IssuedBy, s.now()); err != nil {
			return err
		}
		return repos.Quotes().Update(ctx, q, expected)
	})
	if err != nil {
		s.observe(ctx, tenantID, err)
		return nil, err
	}

	s.logger.Info("Quote issued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("quote_id", q.ID.String()),
		zap.String("content_hash", q.Seal.ContentHash))
	s.publish(ctx, takeEvents(q)...)

	resp := ToQuoteResponse(q)
	return &resp, nil
}

// AcceptQuote records the acceptance of an issued quote. A quote is accepted at most once.
func (s *QuoteService) AcceptQuote(ctx context.Context, tenantID uuid.UUID, id string, req AcceptQuoteRequest) (*AcceptanceResponse, error) {
	quoteID, err := shared.ParseID(shared.KindQuote, id)
	if err != nil {
		return nil, err
	}
	var acc *ledger.Acceptance
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		q, err := repos.Quotes().FindByID(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		existing, err := repos.Acceptances().FindByQuoteID(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		if existing != nil {
			return alreadyAccepted(quoteID, existing.ID)
		}
		acc, err = ledger.NewAcceptance(q, req.AcceptedBy, req.AcceptedAt, s.now())
		if err != nil {
			return err
		}
		return repos.Acceptances().Create(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quote accepted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("quote_id", quoteID.String()),
		zap.String("acceptance_id", acc.ID.String()))
	s.publish(ctx, ledger.NewAcceptanceRecordedEvent(acc))

	resp := ToAcceptanceResponse(acc)
	return &resp, nil
}

func alreadyAccepted(quoteID, acceptanceID shared.ImmutableID) error {
	return shared.NewDomainError(shared.CodeAlreadyExists,
		fmt.Sprintf("quote %s is already accepted by %s", quoteID, acceptanceID))
}
