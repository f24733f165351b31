// Package embedding defines the embedding provider port (interface).
package embedding

import "context"

// Embedder converts text into a fixed-dimension float vector. Calls may
// fail or time out; callers must treat a missing embedding as pending,
// not fatal.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
