package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/memory"
)

func newTestRouter(embedder *fakeEmbedder) *Router {
	cfg := config.Defaults()
	return NewRouter(embedder, newFakeCache(), &cfg.Memory)
}

func TestRouterKeywordRouting(t *testing.T) {
	r := newTestRouter(newFakeEmbedder())

	tests := []struct {
		text string
		want memory.Category
	}{
		{"I have a meeting tomorrow at 2pm", memory.CategorySchedule},
		{"my doctor prescribed new medication", memory.CategoryHealth},
		{"my boss approved the project", memory.CategoryWork},
		{"my sister and my mom visit often", memory.CategoryFamily},
	}
	for _, tt := range tests {
		got := r.Route(context.Background(), tt.text)
		if got.Primary != tt.want {
			t.Errorf("Route(%q).Primary = %s, want %s", tt.text, got.Primary, tt.want)
		}
		if got.Confidence <= 0 || got.Confidence > 1 {
			t.Errorf("Route(%q).Confidence = %v, out of range", tt.text, got.Confidence)
		}
	}
}

func TestRouterNeverErrors(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.failErr = errors.New("provider down")
	r := newTestRouter(embedder)

	// Keyword signal still routes.
	got := r.Route(context.Background(), "meeting with my boss about the schedule")
	if got.Primary == "" {
		t.Fatal("expected a category even with embedder down")
	}
}

func TestRouterNoSignalFallsToMisc(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.failErr = errors.New("provider down")
	r := newTestRouter(embedder)

	got := r.Route(context.Background(), "zzz qqq xxx")
	if got.Primary != memory.CategoryMisc {
		t.Errorf("Primary = %s, want misc", got.Primary)
	}
	if got.Confidence >= 0.80 {
		t.Errorf("Confidence = %v, must stay low to force the fallback path", got.Confidence)
	}
}

func TestRouterWarmupUsesCache(t *testing.T) {
	embedder := newFakeEmbedder()
	r := newTestRouter(embedder)

	if err := r.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	firstCalls := embedder.calls

	// Second router sharing the cache should not re-embed.
	r2 := NewRouter(embedder, r.cache, r.cfg)
	if err := r2.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup 2: %v", err)
	}
	if embedder.calls != firstCalls {
		t.Errorf("expected cached warmup, embedder calls went %d -> %d", firstCalls, embedder.calls)
	}
}

func TestRouterAmbiguousTextLowConfidence(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.failErr = errors.New("down")
	r := newTestRouter(embedder)

	// Terms spread across several categories.
	got := r.Route(context.Background(), "doctor meeting salary family friend")
	if got.Confidence >= 0.80 {
		t.Errorf("Confidence = %v, expected below fallback threshold for mixed text", got.Confidence)
	}
	if len(got.Secondary) == 0 {
		t.Error("expected secondary categories for mixed text")
	}
}
