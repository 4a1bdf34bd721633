package persistence

import (
	"context"
	"fmt"

	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const edgeInsertBatchSize = 500

// GormLineageIndex stores lineage edges in the lineage_edges table.
// The table is derived data; Replace rebuilds it from the primary records.
type GormLineageIndex struct {
	db *gorm.DB
}

// NewGormLineageIndex creates a new GormLineageIndex
func NewGormLineageIndex(db *gorm.DB) *GormLineageIndex {
	return &GormLineageIndex{db: db}
}

// AddEdges inserts edges, skipping any that are already indexed
func (x *GormLineageIndex) AddEdges(ctx context.Context, edges ...ledger.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	return x.insert(ctx, toEdgeRows(edges))
}

func (x *GormLineageIndex) insert(ctx context.Context, rows []models.LineageEdgeModel) error {
	if err := x.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, edgeInsertBatchSize).Error; err != nil {
		return fmt.Errorf("failed to index lineage edges: %w", err)
	}
	return nil
}

// EdgesTo returns the edges of one type that end at the node
func (x *GormLineageIndex) EdgesTo(ctx context.Context, tenantID uuid.UUID, to shared.ImmutableID, edgeType ledger.EdgeType) ([]ledger.Edge, error) {
	return x.find(ctx, x.db.Where("tenant_id = ? AND to_id = ? AND edge_type = ?", tenantID, to.String(), string(edgeType)))
}

// EdgesFrom returns the edges leaving any of the nodes, optionally limited to some types
func (x *GormLineageIndex) EdgesFrom(ctx context.Context, tenantID uuid.UUID, from []shared.ImmutableID, edgeTypes ...ledger.EdgeType) ([]ledger.Edge, error) {
	if len(from) == 0 {
		return []ledger.Edge{}, nil
	}
	scope := x.db.Where("tenant_id = ? AND from_id IN ?", tenantID, idStrings(from))
	if len(edgeTypes) > 0 {
		types := make([]string, len(edgeTypes))
		for i, t := range edgeTypes {
			types[i] = string(t)
		}
		scope = scope.Where("edge_type IN ?", types)
	}
	return x.find(ctx, scope)
}

// Replace swaps all edges of the firm for the given set. Callers run it inside a
// transaction so readers never see a half-built index.
func (x *GormLineageIndex) Replace(ctx context.Context, tenantID uuid.UUID, edges []ledger.Edge) error {
	db := x.db.WithContext(ctx)
	if err := db.Where("tenant_id = ?", tenantID).Delete(&models.LineageEdgeModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear lineage edges: %w", err)
	}
	if len(edges) == 0 {
		return nil
	}
	rows := toEdgeRows(edges)
	for i := range rows {
		rows[i].TenantID = tenantID
	}
	return x.insert(ctx, rows)
}

func (x *GormLineageIndex) find(ctx context.Context, scope *gorm.DB) ([]ledger.Edge, error) {
	var rows []models.LineageEdgeModel
	if err := scope.WithContext(ctx).
		Order("from_id ASC, edge_type ASC, to_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query lineage edges: %w", err)
	}
	out := make([]ledger.Edge, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

func toEdgeRows(edges []ledger.Edge) []models.LineageEdgeModel {
	rows := make([]models.LineageEdgeModel, len(edges))
	for i, e := range edges {
		rows[i] = models.LineageEdgeModelFromDomain(e)
	}
	return rows
}

var _ ledger.LineageIndex = (*GormLineageIndex)(nil)
