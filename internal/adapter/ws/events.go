package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventFactStored          = "memory.fact_stored"
	EventAnswerCorrected     = "memory.answer_corrected"
	EventContextAssembled    = "memory.context_assembled"
	EventEmbeddingBackfilled = "memory.embedding_backfilled"
)

// FactStoredEvent is broadcast after a fact passes the store pipeline.
type FactStoredEvent struct {
	OwnerID    string  `json:"owner_id"`
	RecordID   string  `json:"record_id"`
	Category   string  `json:"category"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// AnswerCorrectedEvent is broadcast when the validator chain changes a draft.
type AnswerCorrectedEvent struct {
	OwnerID     string   `json:"owner_id"`
	Corrections []string `json:"corrections"`
}

// ContextAssembledEvent is broadcast after context assembly, carrying the
// per-source token usage and whether the result was budget compliant.
type ContextAssembledEvent struct {
	OwnerID   string         `json:"owner_id"`
	Tokens    map[string]int `json:"tokens"`
	Compliant bool           `json:"compliant"`
}

// EmbeddingBackfilledEvent is broadcast when a pending embedding completes.
type EmbeddingBackfilledEvent struct {
	OwnerID  string `json:"owner_id"`
	RecordID string `json:"record_id"`
	Attempts int    `json:"attempts"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
