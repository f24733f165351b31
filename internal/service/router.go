package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/port/cache"
	"github.com/Strob0t/MemCore/internal/port/embedding"
)

const (
	keywordWeight  = 0.6
	semanticWeight = 0.4

	refCachePrefix = "ref:"
	refCacheTTL    = 24 * time.Hour
)

// categoryKeywords drives the keyword half of routing. Each list doubles
// as the reference text embedded for the semantic half.
var categoryKeywords = map[memory.Category][]string{
	memory.CategoryPersonal: {
		"name", "birthday", "age", "identity", "personality", "hobby", "hobbies",
	},
	memory.CategoryHealth: {
		"doctor", "medication", "allergy", "allergic", "diet", "exercise",
		"sleep", "health", "symptom", "appointment", "therapy",
	},
	memory.CategoryWork: {
		"job", "work", "career", "boss", "colleague", "project", "salary",
		"office", "company", "client", "promotion", "interview",
	},
	memory.CategoryFamily: {
		"mother", "father", "mom", "dad", "sister", "brother", "son",
		"daughter", "wife", "husband", "parents", "family", "grandma", "grandpa",
	},
	memory.CategoryRelationships: {
		"friend", "partner", "girlfriend", "boyfriend", "neighbor",
		"relationship", "dating", "acquaintance",
	},
	memory.CategoryPreferences: {
		"favorite", "prefer", "like", "love", "hate", "dislike", "enjoy",
		"taste", "style", "music", "food", "color",
	},
	memory.CategorySchedule: {
		"meeting", "schedule", "calendar", "appointment", "deadline",
		"reminder", "event", "tomorrow", "tonight", "plan",
	},
	memory.CategoryFinance: {
		"money", "bank", "loan", "rent", "mortgage", "invest", "budget",
		"salary", "debt", "savings", "price", "bill",
	},
	memory.CategoryLocation: {
		"live", "address", "city", "country", "moved", "travel", "trip",
		"home", "apartment", "neighborhood",
	},
	memory.CategoryEducation: {
		"school", "university", "degree", "course", "study", "exam",
		"student", "teacher", "class", "learning",
	},
	memory.CategoryMisc: {},
}

// Router classifies free text into one primary category with a confidence,
// combining keyword-pattern scoring with semantic similarity against
// per-category reference embeddings.
type Router struct {
	embedder embedding.Embedder
	cache    cache.Cache
	cfg      *config.Memory

	// refs is read-only after Warmup; safe for concurrent reads.
	refs map[memory.Category][]float32
}

// NewRouter creates a Router. Call Warmup before serving traffic.
func NewRouter(embedder embedding.Embedder, c cache.Cache, cfg *config.Memory) *Router {
	return &Router{
		embedder: embedder,
		cache:    c,
		cfg:      cfg,
		refs:     make(map[memory.Category][]float32),
	}
}

// Warmup populates the per-category reference embeddings, consulting the
// cache before calling the embedding provider. The refs map must not be
// mutated after Warmup returns.
func (r *Router) Warmup(ctx context.Context) error {
	for cat, words := range categoryKeywords {
		if len(words) == 0 {
			continue
		}

		key := refCachePrefix + string(cat)
		if data, found, err := r.cache.Get(ctx, key); err == nil && found {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil {
				r.refs[cat] = vec
				continue
			}
		}

		vec, err := r.embedder.Embed(ctx, strings.Join(words, " "))
		if err != nil {
			return fmt.Errorf("embed reference for %s: %w", cat, err)
		}
		r.refs[cat] = vec

		if data, err := json.Marshal(vec); err == nil {
			_ = r.cache.Set(ctx, key, data, refCacheTTL)
		}
	}

	slog.Info("category router warmed up", "categories", len(r.refs))
	return nil
}

// Route classifies text. It never returns an error: on analysis failure it
// returns a low-confidence misc verdict so the caller's topic fallback fires.
func (r *Router) Route(ctx context.Context, text string) memory.RouteDecision {
	scores := make(map[memory.Category]float64, len(categoryKeywords))

	terms := extractKeywords(text)
	for cat, words := range categoryKeywords {
		if len(words) == 0 {
			continue
		}
		scores[cat] = keywordWeight * keywordHits(terms, words)
	}

	if vec, err := r.embedText(ctx, text); err == nil {
		for cat, ref := range r.refs {
			sim := memory.Cosine(vec, ref)
			if sim > 0 {
				scores[cat] += semanticWeight * sim
			}
		}
	} else {
		slog.Debug("router semantic signal unavailable", "error", err)
	}

	return decide(scores)
}

func (r *Router) embedText(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return r.embedder.Embed(ctx, text)
}

// keywordHits returns the [0,1] share of category words present in terms.
func keywordHits(terms, words []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	stems := make(map[string]bool, len(words))
	for _, w := range words {
		stems[stem(w)] = true
	}
	hits := 0
	for _, t := range terms {
		if stems[stem(t)] {
			hits++
		}
	}
	// Normalize by query length so long inputs don't dilute a clear match.
	n := len(terms)
	if n > 5 {
		n = 5
	}
	score := float64(hits) / float64(n)
	if score > 1 {
		score = 1
	}
	return score
}

// decide normalizes the per-category scores into one verdict.
func decide(scores map[memory.Category]float64) memory.RouteDecision {
	var (
		best    memory.Category
		bestVal float64
		total   float64
	)
	for cat, v := range scores {
		total += v
		if v > bestVal || (v == bestVal && best == "") {
			best, bestVal = cat, v
		}
	}

	if bestVal == 0 {
		// No signal at all. Low confidence forces the fallback path.
		return memory.RouteDecision{Primary: memory.CategoryMisc, Confidence: 0.1}
	}

	confidence := bestVal / total
	if confidence > 1 {
		confidence = 1
	}

	var secondary []memory.Category
	for cat, v := range scores {
		if cat != best && v >= bestVal*0.5 && v > 0 {
			secondary = append(secondary, cat)
		}
	}

	return memory.RouteDecision{Primary: best, Confidence: confidence, Secondary: secondary}
}
