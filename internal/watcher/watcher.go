// Package watcher turns raw DOM-mutation notifications into store updates.
// It is deliberately a coarse full-rescan design: the host site reorders
// and batch-swaps nodes, so on every notification it re-parses everything
// currently present instead of trusting any delta. The visible set is
// bounded by the virtualization window, so the rescan stays cheap.
package watcher

import (
	"context"

	"go.uber.org/zap"

	"chatscribe/internal/fragment"
	"chatscribe/internal/transcript"
)

// DocumentSource lists every candidate message fragment currently present
// in the live document.
type DocumentSource interface {
	Candidates(ctx context.Context) ([]fragment.Candidate, error)
}

// Watcher feeds parsed candidates into the store. Notifications funnel
// through a one-slot channel drained by a single consumer, so rescans
// never overlap and bursts coalesce into one pending rescan.
type Watcher struct {
	source  DocumentSource
	store   *transcript.Store
	logger  *zap.Logger
	pending chan struct{}
}

func New(source DocumentSource, store *transcript.Store, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:  source,
		store:   store,
		logger:  logger,
		pending: make(chan struct{}, 1),
	}
}

// Notify marks the document dirty. Safe to call from any goroutine; while
// a rescan is already pending further notifications are dropped.
func (w *Watcher) Notify() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Rescan parses all current candidates and upserts them, returning how
// many records were newly seen. Candidates that fail to parse are skipped
// silently.
func (w *Watcher) Rescan(ctx context.Context) (int, error) {
	candidates, err := w.source.Candidates(ctx)
	if err != nil {
		return 0, err
	}

	newCount := 0
	for _, c := range candidates {
		rec, ok := fragment.Parse(c)
		if !ok {
			continue
		}
		if w.store.Upsert(rec) {
			newCount++
		}
	}
	if newCount > 0 {
		w.logger.Debug("rescan found new records",
			zap.Int("new", newCount), zap.Int("total", w.store.Count()))
	}
	return newCount, nil
}

// Run drains notifications until the context ends, one rescan at a time in
// notification order. Rescan errors are logged and do not stop the loop;
// a malformed batch must never abort an in-progress capture.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
			if _, err := w.Rescan(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("rescan failed", zap.Error(err))
			}
		}
	}
}
