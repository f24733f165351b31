package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/port/database"
	"github.com/Strob0t/MemCore/internal/port/embedding"
)

// Composite score weights. Each sub-score is normalized to [0,1].
const (
	weightSemantic   = 0.4
	weightKeyword    = 0.3
	weightRecency    = 0.1
	weightImportance = 0.1
	weightUsage      = 0.1
)

// Boost constants. These are floors and deltas that enforce hard
// guarantees beyond what pure similarity produces.
const (
	explicitFloor    = 0.99
	explicitDelta    = 0.70
	entityFloor      = 0.85
	ordinalBoost     = 0.40
	ordinalPenalty   = 0.20
	candidatePoolCap = 200
)

// RetrievalEngine scores stored facts against a query and returns a
// capped, diversified ranked list.
type RetrievalEngine struct {
	store    database.Store
	embedder embedding.Embedder
	router   *Router
	cfg      *config.Memory
	embCfg   *config.Embeddings
}

// NewRetrievalEngine creates a RetrievalEngine.
func NewRetrievalEngine(store database.Store, embedder embedding.Embedder, router *Router, cfg *config.Memory, embCfg *config.Embeddings) *RetrievalEngine {
	return &RetrievalEngine{
		store:    store,
		embedder: embedder,
		router:   router,
		cfg:      cfg,
		embCfg:   embCfg,
	}
}

// Retrieve returns the ranked candidate list for a query. An empty list
// means "no memory", not an error.
func (e *RetrievalEngine) Retrieve(ctx context.Context, ownerID, query string) ([]memory.Candidate, memory.RouteDecision, error) {
	route := e.router.Route(ctx, query)

	queryVec := e.embedQuery(ctx, query)

	pool, err := e.gatherCandidates(ctx, ownerID, query, route)
	if err != nil {
		return nil, route, err
	}
	if len(pool) == 0 {
		return nil, route, nil
	}

	terms := extractKeywords(query)
	names := properNames(query)
	queryOrdinal, hasOrdinal := detectOrdinal(query)
	subject := ""
	if hasOrdinal {
		subject = ordinalSubject(query)
	}

	candidates := make([]memory.Candidate, 0, len(pool))
	for i := range pool {
		c := e.score(&pool[i], query, queryVec, terms)
		applyBoosts(&c, names, hasOrdinal, queryOrdinal, subject)
		c.Score = weightSemantic*c.Semantic + weightKeyword*c.Keyword +
			weightRecency*c.Recency + weightImportance*c.Importance +
			weightUsage*c.Usage + c.Boost
		candidates = append(candidates, c)
	}

	ranked := e.diversify(candidates)

	ids := make([]string, len(ranked))
	for i := range ranked {
		ids[i] = ranked[i].ID
	}
	if err := e.store.TouchAccessed(ctx, ids); err != nil {
		slog.Warn("touch accessed failed", "owner_id", ownerID, "error", err)
	}

	return ranked, route, nil
}

// embedQuery returns the query embedding or nil if generation fails or
// times out. Retrieval degrades to keyword-only scoring without it.
func (e *RetrievalEngine) embedQuery(ctx context.Context, query string) []float32 {
	embedCtx, cancel := context.WithTimeout(ctx, e.embCfg.Timeout)
	defer cancel()

	vec, err := e.embedder.Embed(embedCtx, query)
	if err != nil {
		slog.Debug("query embedding unavailable", "error", err)
		return nil
	}
	return vec
}

// gatherCandidates pulls the primary-category records, widens to the
// topic fallback when confidence is low or primary hits are scarce, and
// merges the two sets by record id before any scoring happens. When low
// routing confidence already guarantees a fallback, both queries run in
// parallel; the scarce-hits trigger is only known after the primary
// fetch and runs sequentially.
func (e *RetrievalEngine) gatherCandidates(ctx context.Context, ownerID, query string, route memory.RouteDecision) ([]memory.Record, error) {
	var primary, all []memory.Record

	if route.Confidence < e.cfg.RouterConfidence {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			recs, err := e.store.ListCurrentByCategory(gctx, ownerID, route.Primary, candidatePoolCap)
			if err != nil {
				return fmt.Errorf("list primary candidates: %w", err)
			}
			primary = recs
			return nil
		})
		g.Go(func() error {
			recs, err := e.store.ListCurrent(gctx, ownerID, candidatePoolCap*2)
			if err != nil {
				// Fallback widening is best effort.
				slog.Warn("topic fallback query failed, continuing with primary only",
					"owner_id", ownerID, "error", err)
				return nil
			}
			all = recs
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		recs, err := e.store.ListCurrentByCategory(ctx, ownerID, route.Primary, candidatePoolCap)
		if err != nil {
			return nil, fmt.Errorf("list primary candidates: %w", err)
		}
		primary = recs

		if len(primary) < e.cfg.MinPrimaryHits {
			all, err = e.store.ListCurrent(ctx, ownerID, candidatePoolCap*2)
			if err != nil {
				slog.Warn("topic fallback query failed, continuing with primary only",
					"owner_id", ownerID, "error", err)
				all = nil
			}
		}
	}

	byID := make(map[string]memory.Record, len(primary))
	for _, rec := range primary {
		byID[rec.ID] = rec
	}

	terms := extractKeywords(query)
	for _, rec := range all {
		if _, dup := byID[rec.ID]; dup {
			continue
		}
		if keywordScore(terms, rec.Content) > 0 {
			byID[rec.ID] = rec
		}
	}

	merged := make([]memory.Record, 0, len(byID))
	for _, rec := range byID {
		merged = append(merged, rec)
	}
	return merged, nil
}

// score computes the composite sub-scores for one record.
func (e *RetrievalEngine) score(rec *memory.Record, query string, queryVec []float32, terms []string) memory.Candidate {
	c := memory.Candidate{Record: *rec}

	c.Keyword = keywordScore(terms, rec.Content)

	switch {
	case containsPhrase(rec.Content, query):
		c.Semantic = 1.0
	case len(rec.Embedding) == 0:
		// Pending embedding: keyword score stands in so the record is
		// still retrievable until backfill completes.
		c.Semantic = c.Keyword
	default:
		c.Semantic = memory.Cosine(queryVec, rec.Embedding)
	}

	c.Recency = recencyScore(rec.CreatedAt, rec.LastAccessedAt, time.Now())
	c.Importance = rec.RelevanceScore
	c.Usage = usageScore(rec.UsageFrequency)
	return c
}

// applyBoosts applies the post-composite floors and deltas in precedence
// order: explicit storage, entity ambiguity, ordinal match.
func applyBoosts(c *memory.Candidate, names []string, hasOrdinal bool, queryOrdinal int, subject string) {
	if c.Explicit() {
		if c.Semantic > 0 {
			c.Boost += explicitDelta
		} else {
			c.Semantic = explicitFloor
		}
	}

	for _, name := range names {
		if mentionsName(c.Content, name) {
			if c.Semantic < entityFloor {
				c.Semantic = entityFloor
			}
			break
		}
	}

	if hasOrdinal {
		candOrdinal, ok := detectOrdinal(c.Content)
		comparable := subject == "" || strings.Contains(strings.ToLower(c.Content), subject)
		switch {
		case ok && candOrdinal == queryOrdinal:
			c.Boost += ordinalBoost
		case ok && comparable:
			c.Boost -= ordinalPenalty
		}
	}
}

// diversify takes the top half by score, then fills the final list with
// a recent/older split so long-lived facts are not starved by recency.
func (e *RetrievalEngine) diversify(candidates []memory.Candidate) []memory.Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	// Keep the top half, but never cut below the final list size: small
	// pools must survive intact so boosted ambiguous candidates all reach
	// the caller.
	half := (len(candidates) + 1) / 2
	if half < e.cfg.MaxCandidates {
		half = e.cfg.MaxCandidates
	}
	if half > len(candidates) {
		half = len(candidates)
	}
	top := candidates[:half]

	cutoff := time.Now().AddDate(0, 0, -e.cfg.RecentDays)
	var recent, older []memory.Candidate
	for _, c := range top {
		if c.CreatedAt.After(cutoff) {
			recent = append(recent, c)
		} else {
			older = append(older, c)
		}
	}

	maxN := e.cfg.MaxCandidates
	recentSlots := int(float64(maxN) * e.cfg.RecentShare)
	olderSlots := maxN - recentSlots

	picked := make([]memory.Candidate, 0, maxN)
	picked = append(picked, take(recent, recentSlots)...)
	picked = append(picked, take(older, olderSlots)...)

	// Unused slots in one bucket go to the other.
	if len(picked) < maxN {
		if len(recent) > recentSlots {
			picked = append(picked, take(recent[recentSlots:], maxN-len(picked))...)
		}
		if len(picked) < maxN && len(older) > olderSlots {
			picked = append(picked, take(older[olderSlots:], maxN-len(picked))...)
		}
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Score > picked[j].Score
	})
	return picked
}

func take(c []memory.Candidate, n int) []memory.Candidate {
	if n > len(c) {
		n = len(c)
	}
	if n < 0 {
		n = 0
	}
	return c[:n]
}

// containsPhrase reports whether the query appears verbatim in content,
// or vice versa, case-insensitively.
func containsPhrase(content, query string) bool {
	lc := strings.ToLower(content)
	lq := strings.ToLower(strings.TrimSpace(query))
	if lq == "" {
		return false
	}
	return strings.Contains(lc, lq) || strings.Contains(lq, lc)
}

// recencyScore is a two-part decay over day/week/month buckets: creation
// date and last-access date each contribute a bounded bonus.
func recencyScore(created, accessed, now time.Time) float64 {
	return recencyBucket(now.Sub(created))*0.5 + recencyBucket(now.Sub(accessed))*0.5
}

func recencyBucket(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.7
	case age < 30*24*time.Hour:
		return 0.4
	default:
		return 0.1
	}
}

// usageScore maps usage frequency monotonically into [0,1).
func usageScore(freq int) float64 {
	if freq < 0 {
		freq = 0
	}
	return float64(freq) / float64(freq+5)
}
