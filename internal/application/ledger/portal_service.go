package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PortalService projects the client-visible subset of the ledger for one client
type PortalService struct {
	source ledger.PortalSource
	logger *zap.Logger
}

// NewPortalService creates a new PortalService
func NewPortalService(source ledger.PortalSource, logger *zap.Logger) *PortalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortalService{source: source, logger: logger.Named("portal")}
}

// ProjectForClient returns finalized invoices and active client-facing documents of one
// client, oldest first
func (s *PortalService) ProjectForClient(ctx context.Context, tenantID uuid.UUID, clientID string) ([]PortalArtifactResponse, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, shared.NewValidationError("client_id", "", "required")
	}

	invoices, err := s.source.ListFinalizedByClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	ids := make([]shared.ImmutableID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	var adjustments map[shared.ImmutableID][]ledger.Adjustment
	if len(ids) > 0 {
		adjustments, err = s.source.ListAdjustmentsByInvoices(ctx, tenantID, ids)
		if err != nil {
			return nil, err
		}
	}
	bindings, err := s.source.ListActiveBindingsForClient(ctx, tenantID, clientID, ledger.PortalPurposes())
	if err != nil {
		return nil, err
	}

	artifacts := make([]ledger.PortalArtifact, 0, len(invoices)+len(bindings))
	for idx := range invoices {
		if a, ok := ledger.InvoicePortalArtifact(&invoices[idx], adjustments[invoices[idx].ID]); ok {
			artifacts = append(artifacts, a)
		}
	}
	for idx := range bindings {
		if a, ok := ledger.BindingPortalArtifact(&bindings[idx]); ok {
			artifacts = append(artifacts, a)
		}
	}

	out := make([]PortalArtifactResponse, 0, len(artifacts))
	dropped := 0
	for idx := range artifacts {
		a := &artifacts[idx]
		if a.ClientID != clientID || !a.Type.IsValid() {
			dropped++
			continue
		}
		out = append(out, ToPortalArtifactResponse(a))
	}
	if dropped > 0 {
		s.logger.Error("Portal source returned records outside the client scope",
			zap.String("tenant_id", tenantID.String()),
			zap.String("client_id", clientID),
			zap.Int("dropped", dropped))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}
