// Package database defines the vector store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/MemCore/internal/domain/memory"
)

// Store is the port interface for fact persistence. Implementations must
// provide nearest-neighbor distance search in addition to metadata CRUD.
type Store interface {
	// Records
	CreateMemory(ctx context.Context, rec *memory.Record) error
	GetMemory(ctx context.Context, ownerID, id string) (*memory.Record, error)
	ListMemories(ctx context.Context, ownerID string, limit int) ([]memory.Record, error)
	ListCurrentByCategory(ctx context.Context, ownerID string, cat memory.Category, limit int) ([]memory.Record, error)
	ListCurrent(ctx context.Context, ownerID string, limit int) ([]memory.Record, error)
	RecentCurrent(ctx context.Context, ownerID string, cat memory.Category, n int) ([]memory.Record, error)

	// NearestCurrent returns up to limit current records in (owner, category)
	// ordered by ascending cosine distance to the probe embedding.
	NearestCurrent(ctx context.Context, ownerID string, cat memory.Category, embedding []float32, limit int) ([]memory.Neighbor, error)

	// Mutations
	MarkSuperseded(ctx context.Context, id, successorID string) error
	BoostMemory(ctx context.Context, id string, relevanceDelta float64) error
	TouchAccessed(ctx context.Context, ids []string) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	ListEmbeddingPending(ctx context.Context, limit int) ([]memory.Record, error)

	// Category budgets
	AddCategoryTokens(ctx context.Context, ownerID string, cat memory.Category, tokens int) (int, error)
	GetCategoryTokens(ctx context.Context, ownerID string, cat memory.Category) (int, error)

	// WithFactLock serializes a check-then-write sequence per
	// (owner, category) so near-simultaneous writes of the same fact
	// cannot race into two current records.
	WithFactLock(ctx context.Context, ownerID string, cat memory.Category, fn func(ctx context.Context) error) error
}
