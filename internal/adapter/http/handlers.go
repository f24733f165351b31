package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/MemCore/internal/adapter/litellm"
	"github.com/Strob0t/MemCore/internal/adapter/nats"
	"github.com/Strob0t/MemCore/internal/adapter/ws"
	"github.com/Strob0t/MemCore/internal/domain/answer"
	"github.com/Strob0t/MemCore/internal/domain/assembly"
	"github.com/Strob0t/MemCore/internal/domain/memory"
	"github.com/Strob0t/MemCore/internal/middleware"
	"github.com/Strob0t/MemCore/internal/resilience"
)

// MemoryAPI is the slice of the memory service the HTTP layer needs.
type MemoryAPI interface {
	StoreFact(ctx context.Context, req memory.StoreRequest) (*memory.StoreResult, error)
	RetrieveContext(ctx context.Context, ownerID, query string, docs []assembly.Document, vault []assembly.VaultSection) (*assembly.Result, error)
	ValidateAnswer(ctx context.Context, ownerID string, in answer.Input) (*answer.Result, error)
	ListMemories(ctx context.Context, ownerID string, limit int) ([]memory.Record, error)
	GetMemory(ctx context.Context, ownerID, id string) (*memory.Record, error)
}

// Handlers holds the HTTP handler dependencies. Pool, Queue, LLM and
// Breaker feed the health endpoint and may be nil in tests.
type Handlers struct {
	Memory  MemoryAPI
	Hub     *ws.Hub
	Pool    *pgxpool.Pool
	Queue   *nats.Queue
	LLM     *litellm.Client
	Breaker *resilience.Breaker
}

type storeFactRequest struct {
	Content  string `json:"content"`
	Explicit bool   `json:"explicit,omitempty"`
}

// StoreFact handles POST /api/v1/memories.
func (h *Handlers) StoreFact(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[storeFactRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Memory.StoreFact(r.Context(), memory.StoreRequest{
		OwnerID:  middleware.OwnerIDFromContext(r.Context()),
		Content:  req.Content,
		Explicit: req.Explicit,
	})
	if err != nil {
		writeDomainError(w, err, "memory not found")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type retrieveContextRequest struct {
	Query     string                  `json:"query"`
	Documents []assembly.Document     `json:"documents,omitempty"`
	Vault     []assembly.VaultSection `json:"vault,omitempty"`
}

// RetrieveContext handles POST /api/v1/context.
func (h *Handlers) RetrieveContext(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[retrieveContextRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Memory.RetrieveContext(r.Context(),
		middleware.OwnerIDFromContext(r.Context()), req.Query, req.Documents, req.Vault)
	if err != nil {
		writeDomainError(w, err, "context not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ValidateAnswer handles POST /api/v1/answers/validate.
func (h *Handlers) ValidateAnswer(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[answer.Input](w, r)
	if !ok {
		return
	}

	result, err := h.Memory.ValidateAnswer(r.Context(),
		middleware.OwnerIDFromContext(r.Context()), in)
	if err != nil {
		writeDomainError(w, err, "answer not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListMemories handles GET /api/v1/memories.
func (h *Handlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.Memory.ListMemories(r.Context(),
		middleware.OwnerIDFromContext(r.Context()), limit)
	if err != nil {
		writeDomainError(w, err, "memories not found")
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetMemory handles GET /api/v1/memories/{id}.
func (h *Handlers) GetMemory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Memory.GetMemory(r.Context(),
		middleware.OwnerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type healthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database,omitempty"`
	Queue      string `json:"queue,omitempty"`
	Embeddings string `json:"embeddings,omitempty"`
	Breaker    string `json:"breaker,omitempty"`
}

// Health handles GET /health. Degraded dependencies are reported, not
// treated as fatal: the memory API keeps serving keyword-only retrieval
// when the embedding provider is down.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if h.Pool != nil {
		if err := h.Pool.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
		} else {
			resp.Database = "ok"
		}
	}
	if h.Queue != nil {
		if h.Queue.IsConnected() {
			resp.Queue = "ok"
		} else {
			resp.Status = "degraded"
			resp.Queue = "disconnected"
		}
	}
	if h.LLM != nil {
		if healthy, _ := h.LLM.Health(r.Context()); healthy {
			resp.Embeddings = "ok"
		} else {
			resp.Status = "degraded"
			resp.Embeddings = "unreachable"
		}
	}
	if h.Breaker != nil {
		resp.Breaker = h.Breaker.State()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
