// Package memory provides the domain model for stored atomic facts:
// owner-scoped records with category, embedding, usage statistics and a
// current/superseded flag, plus the ephemeral retrieval candidate type.
package memory

import (
	"fmt"
	"time"

	"github.com/Strob0t/MemCore/internal/domain"
)

// Category partitions facts into topical groups. The taxonomy is fixed
// plus a small number of dynamic slots.
type Category string

const (
	CategoryPersonal      Category = "personal"
	CategoryHealth        Category = "health"
	CategoryWork          Category = "work"
	CategoryFamily        Category = "family"
	CategoryRelationships Category = "relationships"
	CategoryPreferences   Category = "preferences"
	CategorySchedule      Category = "schedule"
	CategoryFinance       Category = "finance"
	CategoryLocation      Category = "location"
	CategoryEducation     Category = "education"
	CategoryMisc          Category = "misc"
)

// DynamicSlots is the number of additional runtime-assignable categories.
const DynamicSlots = 5

// FixedCategories lists the built-in taxonomy.
var FixedCategories = []Category{
	CategoryPersonal, CategoryHealth, CategoryWork, CategoryFamily,
	CategoryRelationships, CategoryPreferences, CategorySchedule,
	CategoryFinance, CategoryLocation, CategoryEducation, CategoryMisc,
}

// DynamicCategory returns the nth dynamic slot (1-based).
func DynamicCategory(n int) Category {
	return Category(fmt.Sprintf("dynamic_%d", n))
}

// AllCategories returns the fixed taxonomy plus all dynamic slots.
func AllCategories() []Category {
	cats := make([]Category, 0, len(FixedCategories)+DynamicSlots)
	cats = append(cats, FixedCategories...)
	for i := 1; i <= DynamicSlots; i++ {
		cats = append(cats, DynamicCategory(i))
	}
	return cats
}

// ValidCategory reports whether c belongs to the taxonomy.
func ValidCategory(c Category) bool {
	for _, fc := range AllCategories() {
		if c == fc {
			return true
		}
	}
	return false
}

// Metadata keys used on Record.Metadata.
const (
	MetaExplicit         = "explicit"          // "remember this exactly" flag
	MetaEmbeddingPending = "embedding_pending" // embedding generation timed out
	MetaSupersededBy     = "superseded_by"     // successor record ID
)

// Record is a single stored atomic fact.
type Record struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	Category       Category          `json:"category"`
	Subcategory    string            `json:"subcategory,omitempty"`
	Content        string            `json:"content"`
	TokenCount     int               `json:"token_count"`
	Embedding      []float32         `json:"-"`
	RelevanceScore float64           `json:"relevance_score"`
	UsageFrequency int               `json:"usage_frequency"`
	IsCurrent      bool              `json:"is_current"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Explicit reports whether the record was stored via an explicit
// "remember this" request.
func (r *Record) Explicit() bool {
	return r.Metadata[MetaExplicit] == "true"
}

// EmbeddingPending reports whether the record is awaiting embedding backfill.
func (r *Record) EmbeddingPending() bool {
	return r.Metadata[MetaEmbeddingPending] == "true"
}

// Neighbor pairs a record with its vector distance to a probe embedding.
type Neighbor struct {
	Record
	Distance float64 `json:"distance"`
}

// StoreRequest is the input for storing a new fact.
type StoreRequest struct {
	OwnerID  string `json:"owner_id"`
	Content  string `json:"content"`
	Explicit bool   `json:"explicit,omitempty"`
}

// Validate checks that a StoreRequest has all required fields.
func (r *StoreRequest) Validate() error {
	if r.OwnerID == "" {
		return fmt.Errorf("owner_id is required: %w", domain.ErrValidation)
	}
	if r.Content == "" {
		return fmt.Errorf("content is required: %w", domain.ErrValidation)
	}
	return nil
}

// Action is the outcome of the dedup/supersession evaluation for a new fact.
type Action string

const (
	ActionCreate             Action = "create"
	ActionBoostExisting      Action = "boost_existing"
	ActionSupersedeAndCreate Action = "supersede_and_create"
)

// StoreResult reports what happened to a stored fact.
type StoreResult struct {
	Action     Action   `json:"action"`
	RecordID   string   `json:"record_id"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// RouteDecision is the category router's verdict for a text fragment.
type RouteDecision struct {
	Primary    Category   `json:"primary"`
	Confidence float64    `json:"confidence"`
	Secondary  []Category `json:"secondary,omitempty"`
}

// Candidate is an ephemeral scored retrieval candidate. It exists only
// for the duration of one retrieval call and is never persisted.
type Candidate struct {
	Record

	Semantic   float64 `json:"semantic"`
	Keyword    float64 `json:"keyword"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
	Usage      float64 `json:"usage"`
	Boost      float64 `json:"boost"`
	Score      float64 `json:"score"`
}
