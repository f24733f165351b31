// Package broadcast defines the port for pushing telemetry events to
// connected operator clients.
package broadcast

import "context"

// Broadcaster sends real-time telemetry events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
