package messagequeue

// Subjects for the embedding backfill pipeline.
const (
	// SubjectEmbedPending carries records persisted without an embedding
	// because synchronous generation timed out or failed.
	SubjectEmbedPending = "memory.embed.pending"
	// SubjectEmbedDone announces a completed backfill.
	SubjectEmbedDone = "memory.embed.done"
)

// EmbedPendingPayload is the body of a SubjectEmbedPending message.
type EmbedPendingPayload struct {
	RecordID string `json:"record_id"`
	OwnerID  string `json:"owner_id"`
	Content  string `json:"content"`
	Attempt  int    `json:"attempt"`
}

// EmbedDonePayload is the body of a SubjectEmbedDone message.
type EmbedDonePayload struct {
	RecordID string `json:"record_id"`
	OwnerID  string `json:"owner_id"`
	Attempts int    `json:"attempts"`
}
