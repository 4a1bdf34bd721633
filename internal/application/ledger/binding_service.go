package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BindingService records which immutable document a business artifact refers to
type BindingService struct {
	serviceBase
	deliveries  shared.IdempotencyStore
	idempotency shared.IdempotencyConfig
}

// NewBindingService creates a new BindingService. deliveries may be nil, in which
// case redelivered feed messages are recognized by the store alone.
func NewBindingService(cfg ServiceConfig, deliveries shared.IdempotencyStore, idempotency shared.IdempotencyConfig) *BindingService {
	return &BindingService{
		serviceBase: newServiceBase(cfg, "binding"),
		deliveries:  deliveries,
		idempotency: idempotency,
	}
}

// Bind records a new binding
func (s *BindingService) Bind(ctx context.Context, tenantID uuid.UUID, req BindRequest) (*BindingResponse, error) {
	ref, err := ledger.NewArtifactRef(ledger.ArtifactKind(req.ArtifactKind), req.ArtifactRef)
	if err != nil {
		return nil, err
	}
	b, err := s.bind(ctx, tenantID, ledger.NewBindingInput{
		Artifact: ref,
		ClientID: req.ClientID,
		Purpose:  ledger.DocumentPurpose(req.Purpose),
		Subject:  req.Subject,
		Actor:    req.Actor,
		BoundAt:  derefTime(req.BoundAt),
	})
	if err != nil {
		return nil, err
	}
	resp := ToBindingResponse(b)
	return &resp, nil
}

// Rebind supersedes an active binding with a new one pointing at another document.
// The old record gains only its superseded_by pointer.
func (s *BindingService) Rebind(ctx context.Context, tenantID uuid.UUID, bindingID string, req RebindRequest) (*BindingResponse, error) {
	oldID, err := shared.ParseID(shared.KindBindingEvent, bindingID)
	if err != nil {
		return nil, err
	}
	ref, err := ledger.NewArtifactRef(ledger.ArtifactKind(req.ArtifactKind), req.ArtifactRef)
	if err != nil {
		return nil, err
	}
	b, err := s.rebind(ctx, tenantID, oldID, ref, req.Actor, "", "")
	if err != nil {
		return nil, err
	}
	resp := ToBindingResponse(b)
	return &resp, nil
}

// GetBinding returns a binding
func (s *BindingService) GetBinding(ctx context.Context, tenantID uuid.UUID, bindingID string) (*BindingResponse, error) {
	id, err := shared.ParseID(shared.KindBindingEvent, bindingID)
	if err != nil {
		return nil, err
	}
	var b *ledger.BindingEvent
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		b, err = repos.Bindings().FindByID(ctx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := ToBindingResponse(b)
	return &resp, nil
}

// ReceiveFeed applies one delivery of the DMS binding feed. A delivery id that was
// already applied returns the binding it produced.
func (s *BindingService) ReceiveFeed(ctx context.Context, tenantID uuid.UUID, event DMSBindingFeedEvent) (*FeedResult, error) {
	ref, err := feedArtifactRef(event)
	if err != nil {
		return nil, err
	}
	deliveryID := strings.TrimSpace(event.DeliveryID)
	if deliveryID == "" {
		return nil, shared.NewValidationError("delivery_id", "", "required")
	}
	key := deliveryKey(tenantID, deliveryID)

	if s.fastPathEnabled() {
		seen, err := s.deliveries.IsProcessed(ctx, key)
		if err != nil {
			s.logger.Warn("Delivery idempotency check failed, falling back to store",
				zap.String("delivery_id", deliveryID),
				zap.Error(err))
		} else if seen {
			if existing, err := s.findByDelivery(ctx, tenantID, deliveryID); err == nil && existing != nil {
				return &FeedResult{Binding: ToBindingResponse(existing), Redelivered: true}, nil
			}
		}
	}

	if existing, err := s.findByDelivery(ctx, tenantID, deliveryID); err != nil {
		return nil, err
	} else if existing != nil {
		s.markDelivered(ctx, key)
		return &FeedResult{Binding: ToBindingResponse(existing), Redelivered: true}, nil
	}

	var b *ledger.BindingEvent
	if supersedes := strings.TrimSpace(event.Supersedes); supersedes != "" {
		oldID, perr := shared.ParseID(shared.KindBindingEvent, supersedes)
		if perr != nil {
			return nil, perr
		}
		b, err = s.rebind(ctx, tenantID, oldID, ref, event.Actor, deliveryID, event.ClientID)
	} else {
		b, err = s.bind(ctx, tenantID, ledger.NewBindingInput{
			Artifact:   ref,
			ClientID:   event.ClientID,
			Purpose:    ledger.DocumentPurpose(event.Purpose),
			Subject:    event.Subject,
			Actor:      event.Actor,
			BoundAt:    derefTime(event.BoundAt),
			DeliveryID: deliveryID,
		})
	}
	if errors.Is(err, shared.ErrAlreadyExists) {
		// a concurrent delivery of the same message won
		existing, ferr := s.findByDelivery(ctx, tenantID, deliveryID)
		if ferr == nil && existing != nil {
			s.markDelivered(ctx, key)
			return &FeedResult{Binding: ToBindingResponse(existing), Redelivered: true}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	s.markDelivered(ctx, key)
	return &FeedResult{Binding: ToBindingResponse(b)}, nil
}

func (s *BindingService) bind(ctx context.Context, tenantID uuid.UUID, in ledger.NewBindingInput) (*ledger.BindingEvent, error) {
	b, err := ledger.NewBindingEvent(tenantID, in, s.now())
	if err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Bindings().Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Binding recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("binding_id", b.ID.String()),
		zap.String("artifact", b.Artifact.ID.String()),
		zap.String("purpose", string(b.Purpose)))
	s.metrics.RecordBinding(ctx, tenantID, string(b.Purpose), false)
	s.publish(ctx, ledger.NewBindingRecordedEvent(b))
	return b, nil
}

func (s *BindingService) rebind(ctx context.Context, tenantID uuid.UUID, oldID shared.ImmutableID, ref ledger.ArtifactRef, actor, deliveryID, clientID string) (*ledger.BindingEvent, error) {
	var b *ledger.BindingEvent
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		old, err := repos.Bindings().FindByID(ctx, tenantID, oldID)
		if err != nil {
			return err
		}
		if clientID != "" && clientID != old.ClientID {
			return shared.NewValidationError("client_id", clientID,
				fmt.Sprintf("binding %s belongs to another client", old.ID))
		}
		b, err = ledger.NewRebinding(old, ref, actor, deliveryID, s.now())
		if err != nil {
			return err
		}
		if err := repos.Bindings().Create(ctx, b); err != nil {
			return err
		}
		return repos.Bindings().MarkSuperseded(ctx, tenantID, old.ID, b.ID)
	})
	if err != nil {
		s.observe(ctx, tenantID, err)
		return nil, err
	}

	s.logger.Info("Binding superseded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("binding_id", b.ID.String()),
		zap.String("supersedes", oldID.String()),
		zap.String("artifact", b.Artifact.ID.String()))
	s.metrics.RecordBinding(ctx, tenantID, string(b.Purpose), true)
	s.publish(ctx, ledger.NewBindingRecordedEvent(b))
	return b, nil
}

func (s *BindingService) findByDelivery(ctx context.Context, tenantID uuid.UUID, deliveryID string) (*ledger.BindingEvent, error) {
	var b *ledger.BindingEvent
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		b, err = repos.Bindings().FindByDeliveryID(ctx, tenantID, deliveryID)
		return err
	})
	return b, err
}

func (s *BindingService) fastPathEnabled() bool {
	return s.deliveries != nil && s.idempotency.Enabled
}

func (s *BindingService) markDelivered(ctx context.Context, key string) {
	if !s.fastPathEnabled() {
		return
	}
	if _, err := s.deliveries.MarkProcessed(ctx, key, s.idempotency.TTL); err != nil {
		s.logger.Warn("Failed to remember feed delivery",
			zap.String("key", key),
			zap.Error(err))
	}
}

func deliveryKey(tenantID uuid.UUID, deliveryID string) string {
	return fmt.Sprintf("dms:%s:%s", tenantID, deliveryID)
}

// feedArtifactRef picks the single document identifier a feed event carries
func feedArtifactRef(event DMSBindingFeedEvent) (ledger.ArtifactRef, error) {
	type candidate struct {
		field string
		kind  ledger.ArtifactKind
		value string
	}
	var set []candidate
	for _, c := range []candidate{
		{"document_version_id", ledger.ArtifactKindDocumentVersion, event.DocumentVersionID},
		{"frozen_artifact_id", ledger.ArtifactKindFrozenArtifact, event.FrozenArtifactID},
		{"frozen_artifact_hash", ledger.ArtifactKindFrozenArtifact, event.FrozenArtifactHash},
	} {
		if strings.TrimSpace(c.value) != "" {
			set = append(set, c)
		}
	}
	if len(set) != 1 {
		return ledger.ArtifactRef{}, shared.NewValidationError("artifact_ref", "",
			"exactly one of document_version_id, frozen_artifact_id, frozen_artifact_hash is required")
	}
	ref, err := ledger.NewArtifactRef(set[0].kind, set[0].value)
	if err != nil {
		return ledger.ArtifactRef{}, shared.NewValidationError(set[0].field, set[0].value, err.Error())
	}
	return ref, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
