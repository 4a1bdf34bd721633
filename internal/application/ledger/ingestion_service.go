package ledger

import (
	"context"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestionService accepts approved triggers: billable events from project
// management and internal approval records. It never creates invoice lines.
type IngestionService struct {
	serviceBase
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(cfg ServiceConfig) *IngestionService {
	return &IngestionService{serviceBase: newServiceBase(cfg, "ingestion")}
}

// Ingest validates and stores a billable event. Receiving an id that is already
// stored returns the stored record with Replayed set; the stored record always wins.
func (s *IngestionService) Ingest(ctx context.Context, tenantID uuid.UUID, req IngestBillableEventRequest) (*IngestResult, error) {
	candidate, err := ledger.NewBillableEvent(tenantID, req.toDomain(), s.now())
	if err != nil {
		return nil, err
	}

	var (
		stored   *ledger.BillableEvent
		inserted bool
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		ok, err := repos.Events().InsertIfAbsent(ctx, candidate)
		if err != nil {
			return err
		}
		inserted = ok
		if ok {
			stored = candidate
			return nil
		}
		stored, err = repos.Events().FindByID(ctx, tenantID, candidate.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !inserted {
		if stored.Seal.ContentHash != candidate.Seal.ContentHash {
			s.logger.Warn("Replayed billable event differs from stored content",
				zap.String("tenant_id", tenantID.String()),
				zap.String("event_id", stored.ID.String()),
				zap.String("stored_hash", stored.Seal.ContentHash),
				zap.String("received_hash", candidate.Seal.ContentHash))
		} else {
			s.logger.Debug("Billable event replayed",
				zap.String("event_id", stored.ID.String()))
		}
		s.metrics.RecordIngested(ctx, tenantID, string(stored.EventType), true)
		return &IngestResult{Event: ToBillableEventResponse(stored), Replayed: true}, nil
	}

	s.logger.Info("Billable event ingested",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", stored.ID.String()),
		zap.String("client_id", stored.ClientID),
		zap.String("event_type", string(stored.EventType)))
	s.metrics.RecordIngested(ctx, tenantID, string(stored.EventType), false)
	s.publish(ctx, ledger.NewBillableEventIngestedEvent(stored))

	return &IngestResult{Event: ToBillableEventResponse(stored)}, nil
}

// GetBillableEvent returns a stored billable event
func (s *IngestionService) GetBillableEvent(ctx context.Context, tenantID uuid.UUID, id string) (*BillableEventResponse, error) {
	eventID, err := shared.ParseID(shared.KindBillableEvent, id)
	if err != nil {
		return nil, err
	}
	var ev *ledger.BillableEvent
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		ev, err = repos.Events().FindByID(ctx, tenantID, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := ToBillableEventResponse(ev)
	return &resp, nil
}

// RecordApproval stores a sealed internal approval record, the second legal trigger kind
func (s *IngestionService) RecordApproval(ctx context.Context, tenantID uuid.UUID, req RecordApprovalRequest) (*ApprovalRecordResponse, error) {
	record, err := ledger.NewApprovalRecord(tenantID, ledger.NewApprovalRecordInput{
		ClientID:     req.ClientID,
		EngagementID: req.EngagementID,
		Description:  req.Description,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		Currency:     req.Currency,
		Reason:       req.Reason,
		ApprovedBy:   req.ApprovedBy,
		ApprovedAt:   req.ApprovedAt,
	}, s.now())
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Approvals().Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval record created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("approval_id", record.ID.String()),
		zap.String("client_id", record.ClientID))
	s.publish(ctx, ledger.NewApprovalRecordedEvent(record))

	resp := ToApprovalRecordResponse(record)
	return &resp, nil
}
