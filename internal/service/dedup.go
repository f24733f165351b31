package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/port/database"
)

// Decision is the outcome of one dedup/supersession evaluation.
type Decision struct {
	Action   memory.Action
	TargetID string  // existing record to boost or supersede
	Distance float64 // nearest-neighbor distance, 0 if not computed
}

// DedupEngine decides, before a new fact is persisted, whether it
// duplicates or supersedes an existing record.
type DedupEngine struct {
	store database.Store
	cfg   *config.Memory
}

// NewDedupEngine creates a DedupEngine.
func NewDedupEngine(store database.Store, cfg *config.Memory) *DedupEngine {
	return &DedupEngine{store: store, cfg: cfg}
}

// Evaluate checks content against existing current records in
// (owner, category). A nil embedding skips both checks and falls through
// to a plain create: correctness degrades to "more data", never a
// blocked write. Callers must hold the per-(owner, category) fact lock.
func (e *DedupEngine) Evaluate(ctx context.Context, ownerID string, cat memory.Category, content string, embedding []float32) (Decision, error) {
	if len(embedding) == 0 {
		return Decision{Action: memory.ActionCreate}, nil
	}

	// Duplicate: nearest current neighbor closer than the dedup distance.
	// Two neighbors are requested so a lineage that somehow ended up with
	// two current duplicates can be healed on the way through.
	neighbors, err := e.store.NearestCurrent(ctx, ownerID, cat, embedding, 2)
	if err != nil {
		slog.Warn("dedup nearest-neighbor query failed, falling through to create",
			"owner_id", ownerID, "category", cat, "error", err)
		return Decision{Action: memory.ActionCreate}, nil
	}
	if len(neighbors) > 0 && neighbors[0].Distance < e.cfg.DedupDistance {
		e.healDuplicateCurrent(ctx, neighbors)
		return Decision{
			Action:   memory.ActionBoostExisting,
			TargetID: neighbors[0].ID,
			Distance: neighbors[0].Distance,
		}, nil
	}

	// Supersession: a recent current record that is both highly similar
	// and, like the candidate, carries a temporal marker.
	if !hasTemporalMarker(content) {
		return Decision{Action: memory.ActionCreate}, nil
	}

	recent, err := e.store.RecentCurrent(ctx, ownerID, cat, e.cfg.RecentWindow)
	if err != nil {
		return Decision{Action: memory.ActionCreate}, fmt.Errorf("list recent for supersession: %w", err)
	}

	for i := range recent {
		rec := &recent[i]
		if len(rec.Embedding) == 0 || !hasTemporalMarker(rec.Content) {
			continue
		}
		if sim := memory.Cosine(embedding, rec.Embedding); sim > e.cfg.SupersedeSimilarity {
			return Decision{
				Action:   memory.ActionSupersedeAndCreate,
				TargetID: rec.ID,
				Distance: 1 - sim,
			}, nil
		}
	}

	return Decision{Action: memory.ActionCreate}, nil
}

// healDuplicateCurrent marks the second-nearest record superseded when
// both neighbors sit within the duplicate radius of the incoming fact.
// That state means a past write raced or retried into two current rows
// for the same fact; the integrity rule is at most one. Best effort, a
// failed heal is logged and retried on the next duplicate hit.
func (e *DedupEngine) healDuplicateCurrent(ctx context.Context, neighbors []memory.Neighbor) {
	if len(neighbors) < 2 || neighbors[1].Distance >= e.cfg.DedupDistance {
		return
	}
	slog.Warn("two current records within duplicate radius, healing",
		"kept", neighbors[0].ID, "superseded", neighbors[1].ID,
		"distance", neighbors[1].Distance)
	if err := e.store.MarkSuperseded(ctx, neighbors[1].ID, neighbors[0].ID); err != nil {
		slog.Warn("duplicate heal failed", "record_id", neighbors[1].ID, "error", err)
	}
}
