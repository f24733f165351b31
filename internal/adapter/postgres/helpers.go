package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/MemCore/internal/domain/memory"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// memoryColumns is the column list shared by all record queries. The
// embedding is selected as text so it can be parsed without a dedicated
// pgvector codec.
const memoryColumns = `id, owner_id, category, subcategory, content, token_count,
	embedding::text, relevance_score, usage_frequency, is_current,
	created_at, last_accessed_at, metadata`

// scanMemory scans one record row into a memory.Record.
func scanMemory(row scannable) (memory.Record, error) {
	var (
		rec      memory.Record
		embText  *string
		metaJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Category, &rec.Subcategory,
		&rec.Content, &rec.TokenCount, &embText, &rec.RelevanceScore,
		&rec.UsageFrequency, &rec.IsCurrent, &rec.CreatedAt,
		&rec.LastAccessedAt, &metaJSON)
	if err != nil {
		return memory.Record{}, err
	}

	if embText != nil {
		rec.Embedding, err = parseVector(*embText)
		if err != nil {
			return memory.Record{}, fmt.Errorf("parse embedding for %s: %w", rec.ID, err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("unmarshal metadata for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// vectorLiteral renders an embedding as a pgvector text literal: [1,2,3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses a pgvector text literal back into a float slice.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", truncate(s, 24))
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// nullableVector returns nil for empty embeddings so the column stays NULL.
func nullableVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vectorLiteral(v)
}

// metadataJSON marshals record metadata, defaulting to an empty object.
func metadataJSON(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
