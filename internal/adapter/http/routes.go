package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/MemCore/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OwnerID)

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Memories
		r.Post("/memories", h.StoreFact)
		r.Get("/memories", h.ListMemories)
		r.Get("/memories/{id}", h.GetMemory)

		// Context assembly
		r.Post("/context", h.RetrieveContext)

		// Answer validation
		r.Post("/answers/validate", h.ValidateAnswer)
	})
}
