package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/MemCore/internal/adapter/otel"
	"github.com/Strob0t/MemCore/internal/adapter/ws"
	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/port/broadcast"
	"github.com/Strob0t/MemCore/internal/port/database"
	"github.com/Strob0t/MemCore/internal/port/embedding"
	"github.com/Strob0t/MemCore/internal/port/messagequeue"
)

const requeueBatch = 100

// BackfillWorker completes embeddings for records persisted without one.
// It is a bounded retry queue, not a fire-and-forget callback: each
// record gets a fixed number of attempts, and attempt counts travel in
// the message payload.
type BackfillWorker struct {
	store    database.Store
	embedder embedding.Embedder
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	cfg      *config.Memory
	embCfg   *config.Embeddings

	group *errgroup.Group
}

// NewBackfillWorker creates a BackfillWorker.
func NewBackfillWorker(
	store database.Store,
	embedder embedding.Embedder,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	cfg *config.Memory,
	embCfg *config.Embeddings,
) *BackfillWorker {
	g := &errgroup.Group{}
	g.SetLimit(cfg.BackfillWorkers)
	return &BackfillWorker{
		store:    store,
		embedder: embedder,
		queue:    queue,
		hub:      hub,
		metrics:  metrics,
		cfg:      cfg,
		embCfg:   embCfg,
		group:    g,
	}
}

// Start subscribes to the pending-embedding subject and requeues any
// records already marked pending from a previous run. The returned
// cancel func stops consumption; Wait drains in-flight work.
func (w *BackfillWorker) Start(ctx context.Context) (func(), error) {
	stop, err := w.queue.Subscribe(ctx, messagequeue.SubjectEmbedPending, func(msgCtx context.Context, _ string, data []byte) error {
		var payload messagequeue.EmbedPendingPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal backfill payload: %w", err)
		}
		w.group.Go(func() error {
			w.process(msgCtx, &payload)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe backfill: %w", err)
	}

	if err := w.requeuePending(ctx); err != nil {
		slog.Warn("requeue pending embeddings failed", "error", err)
	}

	return stop, nil
}

// Wait blocks until in-flight backfills finish.
func (w *BackfillWorker) Wait() {
	_ = w.group.Wait()
}

// process attempts one embedding. Failures below the attempt cap are
// republished with the count bumped; exhausted records stay pending and
// remain retrievable through keyword scoring.
func (w *BackfillWorker) process(ctx context.Context, payload *messagequeue.EmbedPendingPayload) {
	embedCtx, cancel := context.WithTimeout(ctx, w.embCfg.Timeout)
	vec, err := w.embedder.Embed(embedCtx, payload.Content)
	cancel()
	if err != nil {
		w.retry(ctx, payload, err)
		return
	}

	if err := w.store.UpdateEmbedding(ctx, payload.RecordID, vec); err != nil {
		w.retry(ctx, payload, err)
		return
	}

	w.metrics.EmbeddingsBackfilled.Add(ctx, 1)
	w.hub.BroadcastEvent(ctx, ws.EventEmbeddingBackfilled, ws.EmbeddingBackfilledEvent{
		OwnerID:  payload.OwnerID,
		RecordID: payload.RecordID,
		Attempts: payload.Attempt,
	})

	done := messagequeue.EmbedDonePayload{
		RecordID: payload.RecordID,
		OwnerID:  payload.OwnerID,
		Attempts: payload.Attempt,
	}
	if data, err := json.Marshal(done); err == nil {
		if err := w.queue.Publish(ctx, messagequeue.SubjectEmbedDone, data); err != nil {
			slog.Warn("publish backfill done", "record_id", payload.RecordID, "error", err)
		}
	}

	slog.Info("embedding backfilled", "record_id", payload.RecordID, "attempt", payload.Attempt)
}

func (w *BackfillWorker) retry(ctx context.Context, payload *messagequeue.EmbedPendingPayload, cause error) {
	if payload.Attempt >= w.cfg.BackfillMaxAttempts {
		slog.Error("embedding backfill exhausted",
			"record_id", payload.RecordID,
			"attempts", payload.Attempt,
			"error", cause,
		)
		return
	}

	next := *payload
	next.Attempt++
	data, err := json.Marshal(next)
	if err != nil {
		slog.Error("marshal backfill retry", "record_id", payload.RecordID, "error", err)
		return
	}
	if err := w.queue.Publish(ctx, messagequeue.SubjectEmbedPending, data); err != nil {
		slog.Error("publish backfill retry", "record_id", payload.RecordID, "error", err)
		return
	}
	slog.Warn("embedding backfill retry scheduled",
		"record_id", payload.RecordID,
		"attempt", next.Attempt,
		"error", cause,
	)
}

// requeuePending re-publishes records still marked pending, picking up
// work orphaned by a crash or restart.
func (w *BackfillWorker) requeuePending(ctx context.Context) error {
	pending, err := w.store.ListEmbeddingPending(ctx, requeueBatch)
	if err != nil {
		return fmt.Errorf("list pending embeddings: %w", err)
	}

	for i := range pending {
		rec := &pending[i]
		payload := messagequeue.EmbedPendingPayload{
			RecordID: rec.ID,
			OwnerID:  rec.OwnerID,
			Content:  rec.Content,
			Attempt:  1,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := w.queue.Publish(ctx, messagequeue.SubjectEmbedPending, data); err != nil {
			return fmt.Errorf("requeue record %s: %w", rec.ID, err)
		}
	}

	if len(pending) > 0 {
		slog.Info("requeued pending embeddings", "count", len(pending))
	}
	return nil
}
