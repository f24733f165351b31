package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/MemCore/internal/domain"
	"github.com/Strob0t/MemCore/internal/domain/memory"
)

// Store implements database.Store using PostgreSQL with pgvector.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Records ---

func (s *Store) CreateMemory(ctx context.Context, rec *memory.Record) error {
	meta, err := metadataJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memories (id, owner_id, category, subcategory, content, token_count,
		     embedding, relevance_score, usage_frequency, is_current, created_at, last_accessed_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.OwnerID, rec.Category, rec.Subcategory, rec.Content, rec.TokenCount,
		nullableVector(rec.Embedding), rec.RelevanceScore, rec.UsageFrequency,
		rec.IsCurrent, rec.CreatedAt, rec.LastAccessedAt, meta)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, ownerID, id string) (*memory.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND owner_id = $2`, id, ownerID)

	rec, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get memory %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListMemories(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func (s *Store) ListCurrentByCategory(ctx context.Context, ownerID string, cat memory.Category, limit int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1 AND category = $2 AND is_current
		 ORDER BY created_at DESC LIMIT $3`, ownerID, cat, limit)
	if err != nil {
		return nil, fmt.Errorf("list current by category: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func (s *Store) ListCurrent(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1 AND is_current
		 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list current: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func (s *Store) RecentCurrent(ctx context.Context, ownerID string, cat memory.Category, n int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1 AND category = $2 AND is_current
		 ORDER BY created_at DESC LIMIT $3`, ownerID, cat, n)
	if err != nil {
		return nil, fmt.Errorf("recent current: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func (s *Store) NearestCurrent(ctx context.Context, ownerID string, cat memory.Category, embedding []float32, limit int) ([]memory.Neighbor, error) {
	probe := vectorLiteral(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+`, embedding <=> $3::vector AS distance
		 FROM memories
		 WHERE owner_id = $1 AND category = $2 AND is_current AND embedding IS NOT NULL
		 ORDER BY distance LIMIT $4`, ownerID, cat, probe, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest current: %w", err)
	}
	defer rows.Close()

	var neighbors []memory.Neighbor
	for rows.Next() {
		n, err := scanNeighbor(rows)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// --- Mutations ---

func (s *Store) MarkSuperseded(ctx context.Context, id, successorID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET is_current = false,
		     metadata = metadata || jsonb_build_object('superseded_by', $2::text)
		 WHERE id = $1`, id, successorID)
	if err != nil {
		return fmt.Errorf("mark superseded %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark superseded %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) BoostMemory(ctx context.Context, id string, relevanceDelta float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET usage_frequency = usage_frequency + 1,
		     relevance_score = LEAST(relevance_score + $2, 1.0),
		     last_accessed_at = now()
		 WHERE id = $1`, id, relevanceDelta)
	if err != nil {
		return fmt.Errorf("boost memory %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("boost memory %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) TouchAccessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET usage_frequency = usage_frequency + 1, last_accessed_at = now()
		 WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("touch accessed: %w", err)
	}
	return nil
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET embedding = $2::vector, metadata = metadata - 'embedding_pending'
		 WHERE id = $1`, id, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("update embedding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update embedding %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListEmbeddingPending(ctx context.Context, limit int) ([]memory.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE metadata->>'embedding_pending' = 'true'
		 ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list embedding pending: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// --- Category budgets ---

func (s *Store) AddCategoryTokens(ctx context.Context, ownerID string, cat memory.Category, tokens int) (int, error) {
	// GREATEST(0, ...) self-heals negative accounting instead of erroring.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO category_budgets (owner_id, category, tokens_used)
		 VALUES ($1, $2, GREATEST($3, 0))
		 ON CONFLICT (owner_id, category)
		 DO UPDATE SET tokens_used = GREATEST(category_budgets.tokens_used + $3, 0), updated_at = now()
		 RETURNING tokens_used`, ownerID, cat, tokens)

	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("add category tokens: %w", err)
	}
	return total, nil
}

func (s *Store) GetCategoryTokens(ctx context.Context, ownerID string, cat memory.Category) (int, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT tokens_used FROM category_budgets WHERE owner_id = $1 AND category = $2`, ownerID, cat)

	var total int
	if err := row.Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get category tokens: %w", err)
	}
	return total, nil
}

// --- Locking ---

// WithFactLock serializes check-then-write sequences per (owner, category)
// using a session-scoped advisory lock held on a dedicated connection.
func (s *Store) WithFactLock(ctx context.Context, ownerID string, cat memory.Category, fn func(ctx context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn for fact lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx,
		`SELECT pg_advisory_lock(hashtext($1), hashtext($2))`, ownerID, string(cat)); err != nil {
		return fmt.Errorf("acquire fact lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx),
			`SELECT pg_advisory_unlock(hashtext($1), hashtext($2))`, ownerID, string(cat))
	}()

	return fn(ctx)
}

// --- Scan helpers ---

func collectMemories(rows pgx.Rows) ([]memory.Record, error) {
	var records []memory.Record
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanNeighbor(row scannable) (memory.Neighbor, error) {
	var (
		n        memory.Neighbor
		embText  *string
		metaJSON []byte
	)
	err := row.Scan(&n.ID, &n.OwnerID, &n.Category, &n.Subcategory,
		&n.Content, &n.TokenCount, &embText, &n.RelevanceScore,
		&n.UsageFrequency, &n.IsCurrent, &n.CreatedAt,
		&n.LastAccessedAt, &metaJSON, &n.Distance)
	if err != nil {
		return memory.Neighbor{}, fmt.Errorf("scan neighbor: %w", err)
	}
	if embText != nil {
		n.Embedding, err = parseVector(*embText)
		if err != nil {
			return memory.Neighbor{}, fmt.Errorf("parse embedding for %s: %w", n.ID, err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &n.Metadata); err != nil {
			return memory.Neighbor{}, fmt.Errorf("unmarshal metadata for %s: %w", n.ID, err)
		}
	}
	return n, nil
}
