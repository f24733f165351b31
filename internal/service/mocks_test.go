package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/MemCore/internal/domain"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/port/messagequeue"
)

// memStore is an in-memory database.Store for service tests. Nearest
// neighbor search mirrors the pgvector cosine distance operator.
type memStore struct {
	mu      sync.Mutex
	records map[string]*memory.Record
	budgets map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*memory.Record),
		budgets: make(map[string]int),
	}
}

func (s *memStore) CreateMemory(_ context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *memStore) GetMemory(_ context.Context, ownerID, id string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) list(filter func(*memory.Record) bool, limit int) []memory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Record
	for _, rec := range s.records {
		if filter(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) ListMemories(_ context.Context, ownerID string, limit int) ([]memory.Record, error) {
	return s.list(func(r *memory.Record) bool { return r.OwnerID == ownerID }, limit), nil
}

func (s *memStore) ListCurrentByCategory(_ context.Context, ownerID string, cat memory.Category, limit int) ([]memory.Record, error) {
	return s.list(func(r *memory.Record) bool {
		return r.OwnerID == ownerID && r.Category == cat && r.IsCurrent
	}, limit), nil
}

func (s *memStore) ListCurrent(_ context.Context, ownerID string, limit int) ([]memory.Record, error) {
	return s.list(func(r *memory.Record) bool { return r.OwnerID == ownerID && r.IsCurrent }, limit), nil
}

func (s *memStore) RecentCurrent(_ context.Context, ownerID string, cat memory.Category, n int) ([]memory.Record, error) {
	return s.ListCurrentByCategory(context.Background(), ownerID, cat, n)
}

func (s *memStore) NearestCurrent(_ context.Context, ownerID string, cat memory.Category, embedding []float32, limit int) ([]memory.Neighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var neighbors []memory.Neighbor
	for _, rec := range s.records {
		if rec.OwnerID != ownerID || rec.Category != cat || !rec.IsCurrent || len(rec.Embedding) == 0 {
			continue
		}
		neighbors = append(neighbors, memory.Neighbor{
			Record:   *rec,
			Distance: 1 - memory.Cosine(embedding, rec.Embedding),
		})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Distance < neighbors[j].Distance })
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

func (s *memStore) MarkSuperseded(_ context.Context, id, successorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.IsCurrent = false
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string)
	}
	rec.Metadata[memory.MetaSupersededBy] = successorID
	return nil
}

func (s *memStore) BoostMemory(_ context.Context, id string, relevanceDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.UsageFrequency++
	rec.RelevanceScore += relevanceDelta
	if rec.RelevanceScore > 1.0 {
		rec.RelevanceScore = 1.0
	}
	rec.LastAccessedAt = time.Now()
	return nil
}

func (s *memStore) TouchAccessed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			rec.UsageFrequency++
			rec.LastAccessedAt = time.Now()
		}
	}
	return nil
}

func (s *memStore) UpdateEmbedding(_ context.Context, id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Embedding = embedding
	delete(rec.Metadata, memory.MetaEmbeddingPending)
	return nil
}

func (s *memStore) ListEmbeddingPending(_ context.Context, limit int) ([]memory.Record, error) {
	return s.list(func(r *memory.Record) bool {
		return r.Metadata[memory.MetaEmbeddingPending] == "true"
	}, limit), nil
}

func (s *memStore) AddCategoryTokens(_ context.Context, ownerID string, cat memory.Category, tokens int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerID + "/" + string(cat)
	s.budgets[key] += tokens
	if s.budgets[key] < 0 {
		s.budgets[key] = 0
	}
	return s.budgets[key], nil
}

func (s *memStore) GetCategoryTokens(_ context.Context, ownerID string, cat memory.Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[ownerID+"/"+string(cat)], nil
}

func (s *memStore) WithFactLock(ctx context.Context, _ string, _ memory.Category, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// currentCount returns the number of current records for one owner.
func (s *memStore) currentCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.OwnerID == ownerID && rec.IsCurrent {
			n++
		}
	}
	return n
}

// fakeEmbedder returns canned vectors per text, or a deterministic
// default derived from the text bytes. Setting failErr simulates a
// provider outage.
type fakeEmbedder struct {
	mu      sync.Mutex
	vecs    map[string][]float32
	failErr error
	calls   int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vecs: make(map[string][]float32)}
}

func (e *fakeEmbedder) set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vecs[text] = vec
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failErr != nil {
		return nil, e.failErr
	}
	if vec, ok := e.vecs[text]; ok {
		return vec, nil
	}
	// Deterministic default: byte histogram over 8 buckets.
	vec := make([]float32, 8)
	for _, b := range []byte(text) {
		vec[int(b)%8]++
	}
	return vec, nil
}

func (e *fakeEmbedder) Dimensions() int { return 8 }

// fakeQueue captures published messages and lets tests drive handlers
// synchronously.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {}, nil
}

// drain pops all published messages on subject.
func (q *fakeQueue) drain(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.published[subject]
	q.published[subject] = nil
	return msgs
}

// deliver runs the registered handler for each queued message on subject.
func (q *fakeQueue) deliver(ctx context.Context, subject string) error {
	q.mu.Lock()
	handler := q.handlers[subject]
	q.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no handler for %s", subject)
	}
	for _, msg := range q.drain(subject) {
		if err := handler(ctx, subject, msg); err != nil {
			return err
		}
	}
	return nil
}

// fakeHub records broadcast events.
type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *fakeHub) count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// fakeCache is a map-backed cache.Cache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
