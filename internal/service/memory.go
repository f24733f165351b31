package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/MemCore/internal/adapter/otel"
	"github.com/Strob0t/MemCore/internal/adapter/ws"
	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain"
	"github.com/Strob0t/MemCore/internal/domain/answer"
	"github.com/Strob0t/MemCore/internal/domain/assembly"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/port/broadcast"
	"github.com/Strob0t/MemCore/internal/port/database"
	"github.com/Strob0t/MemCore/internal/port/embedding"
	"github.com/Strob0t/MemCore/internal/port/messagequeue"
)

const boostRelevanceDelta = 0.05

// MemoryService is the single storage and retrieval entry point. Every
// write goes through the same router and dedup evaluation regardless of
// which caller produced it, so category assignment depends only on
// content.
type MemoryService struct {
	store      database.Store
	embedder   embedding.Embedder
	router     *Router
	dedup      *DedupEngine
	retrieval  *RetrievalEngine
	assembler  *Assembler
	validators *ValidatorChain
	queue      messagequeue.Queue
	hub        broadcast.Broadcaster
	metrics    *otel.Metrics
	cfg        *config.Config
}

// NewMemoryService wires the memory pipeline together.
func NewMemoryService(
	store database.Store,
	embedder embedding.Embedder,
	router *Router,
	dedup *DedupEngine,
	retrieval *RetrievalEngine,
	assembler *Assembler,
	validators *ValidatorChain,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	cfg *config.Config,
) *MemoryService {
	return &MemoryService{
		store:      store,
		embedder:   embedder,
		router:     router,
		dedup:      dedup,
		retrieval:  retrieval,
		assembler:  assembler,
		validators: validators,
		queue:      queue,
		hub:        hub,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// StoreFact routes, dedup-checks and persists one fact. The
// check-then-write sequence runs under the per-(owner, category) fact
// lock so near-simultaneous writes cannot race into two current records.
func (s *MemoryService) StoreFact(ctx context.Context, req memory.StoreRequest) (*memory.StoreResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := otel.StartStoreSpan(ctx, req.OwnerID, req.Explicit)
	defer span.End()
	start := time.Now()

	route := s.router.Route(ctx, req.Content)

	var result *memory.StoreResult
	err := s.store.WithFactLock(ctx, req.OwnerID, route.Primary, func(ctx context.Context) error {
		vec := s.embedFact(ctx, req.Content, req.Explicit)

		decision, err := s.dedup.Evaluate(ctx, req.OwnerID, route.Primary, req.Content, vec)
		if err != nil {
			return err
		}

		switch decision.Action {
		case memory.ActionBoostExisting:
			if err := s.store.BoostMemory(ctx, decision.TargetID, boostRelevanceDelta); err != nil {
				return fmt.Errorf("boost duplicate: %w", err)
			}
			result = &memory.StoreResult{
				Action:     memory.ActionBoostExisting,
				RecordID:   decision.TargetID,
				Category:   route.Primary,
				Confidence: route.Confidence,
			}
			return nil

		case memory.ActionSupersedeAndCreate:
			rec, err := s.insertRecord(ctx, &req, route.Primary, vec)
			if err != nil {
				return err
			}
			if err := s.store.MarkSuperseded(ctx, decision.TargetID, rec.ID); err != nil {
				return fmt.Errorf("mark superseded: %w", err)
			}
			result = &memory.StoreResult{
				Action:     memory.ActionSupersedeAndCreate,
				RecordID:   rec.ID,
				Category:   route.Primary,
				Confidence: route.Confidence,
			}
			return nil

		default:
			rec, err := s.insertRecord(ctx, &req, route.Primary, vec)
			if err != nil {
				return err
			}
			result = &memory.StoreResult{
				Action:     memory.ActionCreate,
				RecordID:   rec.ID,
				Category:   route.Primary,
				Confidence: route.Confidence,
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.recordStoreOutcome(ctx, req.OwnerID, result)
	s.metrics.StoreDuration.Record(ctx, time.Since(start).Seconds())

	slog.Info("fact stored",
		"owner_id", req.OwnerID,
		"action", result.Action,
		"record_id", result.RecordID,
		"category", result.Category,
		"confidence", result.Confidence,
	)
	return result, nil
}

// embedFact generates the embedding with the path-appropriate timeout.
// A nil return means "pending": the write continues and backfill takes
// over.
func (s *MemoryService) embedFact(ctx context.Context, content string, explicit bool) []float32 {
	timeout := s.cfg.Embeddings.Timeout
	if explicit {
		timeout = s.cfg.Embeddings.ExplicitTimeout
	}
	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := s.embedder.Embed(embedCtx, content)
	if err != nil {
		slog.Warn("synchronous embedding failed, marking pending", "error", err)
		return nil
	}
	return vec
}

func (s *MemoryService) insertRecord(ctx context.Context, req *memory.StoreRequest, cat memory.Category, vec []float32) (*memory.Record, error) {
	now := time.Now()
	meta := make(map[string]string)
	if req.Explicit {
		meta[memory.MetaExplicit] = "true"
	}
	if len(vec) == 0 {
		meta[memory.MetaEmbeddingPending] = "true"
	}

	rec := &memory.Record{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		Category:       cat,
		Content:        req.Content,
		TokenCount:     assembly.EstimateTokens(req.Content),
		Embedding:      vec,
		RelevanceScore: importanceScore(req.Content, req.Explicit),
		IsCurrent:      true,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       meta,
	}

	if err := s.store.CreateMemory(ctx, rec); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	s.accountTokens(ctx, req.OwnerID, cat, rec.TokenCount)

	if len(vec) == 0 {
		s.enqueueBackfill(ctx, rec)
	}
	return rec, nil
}

// accountTokens updates the per-(owner, category) running total. Budget
// pressure is logged, never blocks a write.
func (s *MemoryService) accountTokens(ctx context.Context, ownerID string, cat memory.Category, tokens int) {
	total, err := s.store.AddCategoryTokens(ctx, ownerID, cat, tokens)
	if err != nil {
		slog.Warn("category token accounting failed", "owner_id", ownerID, "category", cat, "error", err)
		return
	}
	if total > s.cfg.Budgets.CategoryCeiling {
		slog.Warn("category over token ceiling",
			"owner_id", ownerID, "category", cat,
			"tokens_used", total, "ceiling", s.cfg.Budgets.CategoryCeiling)
	}
}

func (s *MemoryService) enqueueBackfill(ctx context.Context, rec *memory.Record) {
	payload := messagequeue.EmbedPendingPayload{
		RecordID: rec.ID,
		OwnerID:  rec.OwnerID,
		Content:  rec.Content,
		Attempt:  1,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal backfill payload", "record_id", rec.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectEmbedPending, data); err != nil {
		slog.Error("publish backfill request", "record_id", rec.ID, "error", err)
	}
}

func (s *MemoryService) recordStoreOutcome(ctx context.Context, ownerID string, result *memory.StoreResult) {
	switch result.Action {
	case memory.ActionBoostExisting:
		s.metrics.FactsDeduped.Add(ctx, 1)
	case memory.ActionSupersedeAndCreate:
		s.metrics.FactsSuperseded.Add(ctx, 1)
		s.metrics.FactsStored.Add(ctx, 1)
	default:
		s.metrics.FactsStored.Add(ctx, 1)
	}

	s.hub.BroadcastEvent(ctx, ws.EventFactStored, ws.FactStoredEvent{
		OwnerID:    ownerID,
		RecordID:   result.RecordID,
		Category:   string(result.Category),
		Action:     string(result.Action),
		Confidence: result.Confidence,
	})
}

// RetrieveContext runs retrieval and context assembly for a query. If
// the caller's deadline expires mid-pipeline, the best context built so
// far is returned rather than an error: partial memory beats none.
func (s *MemoryService) RetrieveContext(ctx context.Context, ownerID, query string, docs []assembly.Document, vault []assembly.VaultSection) (*assembly.Result, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id is required: %w", domain.ErrValidation)
	}
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}

	ctx, span := otel.StartRetrieveSpan(ctx, ownerID, "")
	defer span.End()
	start := time.Now()

	ranked, route, err := s.retrieval.Retrieve(ctx, ownerID, query)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline hit during retrieval: assemble whatever we got.
			slog.Warn("retrieval deadline exceeded, assembling partial context",
				"owner_id", ownerID, "candidates", len(ranked))
		} else {
			return nil, err
		}
	}

	s.metrics.RetrievalCandidates.Record(ctx, int64(len(ranked)))

	result := s.assembler.Assemble(query, ranked, docs, vault)
	if !result.Compliant {
		s.metrics.ContextTruncated.Add(ctx, 1)
	}

	tokens := make(map[string]int, len(result.PerSourceTokens))
	for src, n := range result.PerSourceTokens {
		tokens[string(src)] = n
	}
	s.hub.BroadcastEvent(ctx, ws.EventContextAssembled, ws.ContextAssembledEvent{
		OwnerID:   ownerID,
		Tokens:    tokens,
		Compliant: result.Compliant,
	})

	s.metrics.RetrieveDuration.Record(ctx, time.Since(start).Seconds())

	slog.Info("context retrieved",
		"owner_id", ownerID,
		"category", route.Primary,
		"confidence", route.Confidence,
		"candidates", len(ranked),
		"compliant", result.Compliant,
	)
	return &result, nil
}

// ValidateAnswer runs the correctness validator chain on a draft answer.
func (s *MemoryService) ValidateAnswer(ctx context.Context, ownerID string, in answer.Input) (*answer.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := otel.StartValidateSpan(ctx, ownerID)
	defer span.End()

	result := s.validators.Validate(in)

	for _, step := range result.Telemetry {
		slog.Info("validator step",
			"owner_id", ownerID,
			"step", step.Step,
			"applied", step.Applied,
			"reason", step.Reason,
			"error", step.Error,
		)
	}

	if n := result.Corrections(); n > 0 {
		s.metrics.ValidatorCorrections.Add(ctx, int64(n))

		var corrections []string
		for _, step := range result.Telemetry {
			if step.Applied {
				corrections = append(corrections, step.Step+": "+step.Reason)
			}
		}
		s.hub.BroadcastEvent(ctx, ws.EventAnswerCorrected, ws.AnswerCorrectedEvent{
			OwnerID:     ownerID,
			Corrections: corrections,
		})
	}

	return &result, nil
}

// ListMemories returns an owner's most recent records.
func (s *MemoryService) ListMemories(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListMemories(ctx, ownerID, limit)
}

// GetMemory returns one record scoped to its owner.
func (s *MemoryService) GetMemory(ctx context.Context, ownerID, id string) (*memory.Record, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("owner_id and id are required: %w", domain.ErrValidation)
	}
	return s.store.GetMemory(ctx, ownerID, id)
}
