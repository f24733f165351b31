package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/MemCore/internal/domain"
	"github.com/Strob0t/MemCore/internal/domain/answer"
	"github.com/Strob0t/MemCore/internal/domain/assembly"
	"github.com/Strob0t/MemCore/internal/domain/memory"
)

type stubMemory struct {
	lastOwner string
	lastStore memory.StoreRequest
	listLimit int
}

func (s *stubMemory) StoreFact(_ context.Context, req memory.StoreRequest) (*memory.StoreResult, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required: %w", domain.ErrValidation)
	}
	s.lastStore = req
	return &memory.StoreResult{
		Action:     memory.ActionCreate,
		RecordID:   "rec-1",
		Category:   memory.CategoryMisc,
		Confidence: 0.9,
	}, nil
}

func (s *stubMemory) RetrieveContext(_ context.Context, ownerID, query string, _ []assembly.Document, _ []assembly.VaultSection) (*assembly.Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	s.lastOwner = ownerID
	return &assembly.Result{
		Context:   "# Memory\n- likes espresso\n",
		Compliant: true,
	}, nil
}

func (s *stubMemory) ValidateAnswer(_ context.Context, ownerID string, in answer.Input) (*answer.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.lastOwner = ownerID
	return &answer.Result{FinalAnswer: in.Draft}, nil
}

func (s *stubMemory) ListMemories(_ context.Context, ownerID string, limit int) ([]memory.Record, error) {
	s.lastOwner = ownerID
	s.listLimit = limit
	return nil, nil
}

func (s *stubMemory) GetMemory(_ context.Context, ownerID, id string) (*memory.Record, error) {
	if id != "rec-1" {
		return nil, fmt.Errorf("memory %s: %w", id, domain.ErrNotFound)
	}
	return &memory.Record{ID: id, OwnerID: ownerID, Content: "likes espresso"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubMemory) {
	t.Helper()
	stub := &stubMemory{}
	r := chi.NewRouter()
	MountRoutes(r, &Handlers{Memory: stub})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, stub
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, owner, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStoreFactHandler(t *testing.T) {
	srv, stub := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/memories", "o1",
		`{"content":"likes espresso","explicit":true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var result memory.StoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Action != memory.ActionCreate || result.RecordID != "rec-1" {
		t.Errorf("unexpected result: %+v", result)
	}
	if stub.lastStore.OwnerID != "o1" || !stub.lastStore.Explicit {
		t.Errorf("owner/explicit not forwarded: %+v", stub.lastStore)
	}
}

func TestStoreFactRequiresOwnerHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/memories", "",
		`{"content":"likes espresso"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStoreFactRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/memories", "o1", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRetrieveContextHandler(t *testing.T) {
	srv, stub := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/context", "o1",
		`{"query":"what do I like?","documents":[{"name":"d","content":"x"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result assembly.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(result.Context, "likes espresso") {
		t.Errorf("context = %q", result.Context)
	}
	if stub.lastOwner != "o1" {
		t.Errorf("owner = %q, want o1", stub.lastOwner)
	}
}

func TestRetrieveContextValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/context", "o1", `{"query":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestValidateAnswerHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/answers/validate", "o1",
		`{"query":"q","context":"c","draft":"the answer"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result answer.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.FinalAnswer != "the answer" {
		t.Errorf("final = %q", result.FinalAnswer)
	}
}

func TestListMemoriesReturnsEmptyArray(t *testing.T) {
	srv, stub := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/memories?limit=10", "o1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var records []memory.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if records == nil {
		t.Error("expected [] instead of null")
	}
	if stub.listLimit != 10 {
		t.Errorf("limit = %d, want 10", stub.listLimit)
	}
}

func TestGetMemoryHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/memories/rec-1", "o1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var rec memory.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "rec-1" {
		t.Errorf("record id = %q", rec.ID)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/memories/missing", "o1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthWithoutDependencies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
}
