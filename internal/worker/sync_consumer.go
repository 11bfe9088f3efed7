package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"notia/internal/ingest"
	"notia/internal/middleware"
	"notia/internal/text"
)

type Source interface {
	FetchDocuments(ctx context.Context) ([]text.Document, error)
	LastEditedTime(ctx context.Context) (time.Time, error)
}

type Syncer interface {
	Rebuild(ctx context.Context, docs []text.Document) (int, error)
	IncrementalUpdate(ctx context.Context, docs []text.Document) (ingest.UpdateStats, error)
	NeedsSync(ctx context.Context, sourceModified time.Time) (bool, error)
}

// SyncConsumer executes index refreshes requested over NSQ. Requests run
// one at a time per consumer, which keeps index writers serialized.
type SyncConsumer struct {
	source Source
	syncer Syncer
}

func NewSyncConsumer(source Source, syncer Syncer) *SyncConsumer {
	return &SyncConsumer{source: source, syncer: syncer}
}

func (h *SyncConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event SyncRequested
	if err := json.Unmarshal(m.Body, &event); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if event.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, event.CorrelationID)
	}

	if event.Mode != ModeRebuild && !event.Force {
		lastEdited, err := h.source.LastEditedTime(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "fetching source edit time failed", "error", err)
			return err // Retry
		}
		needed, err := h.syncer.NeedsSync(ctx, lastEdited)
		if err != nil {
			slog.ErrorContext(ctx, "staleness check failed", "error", err)
			return err // Retry
		}
		if !needed {
			slog.InfoContext(ctx, "index already up to date, skipping sync")
			return nil
		}
	}

	docs, err := h.source.FetchDocuments(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "fetching documents failed", "error", err)
		return err // Retry
	}

	if event.Mode == ModeRebuild {
		added, err := h.syncer.Rebuild(ctx, docs)
		if err != nil {
			slog.ErrorContext(ctx, "rebuild failed", "error", err)
			return err // Retry
		}
		slog.InfoContext(ctx, "rebuild complete", "documents", len(docs), "chunks_added", added)
		return nil
	}

	stats, err := h.syncer.IncrementalUpdate(ctx, docs)
	if err != nil {
		slog.ErrorContext(ctx, "incremental update failed", "error", err)
		return err // Retry
	}
	slog.InfoContext(ctx, "sync complete",
		"added", stats.Added, "changed", stats.Changed, "removed", stats.Removed,
		"chunks_added", stats.ChunksAdded)
	return nil
}
