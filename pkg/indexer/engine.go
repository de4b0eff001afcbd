// Package indexer consumes the bounty ledger's event feed and maintains the
// derived, queryable mirror of bounty state.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/internal/metrics"
	"github.com/noskodmi/commit2consumer/pkg/bountystore"
	"github.com/noskodmi/commit2consumer/pkg/feed"
)

// Source defines the interface for consuming the ledger's event feed
type Source interface {
	// Subscribe streams events starting from the given offset until ctx
	// is canceled. Delivery is at least once.
	Subscribe(ctx context.Context, fromOffset uint64) (<-chan feed.Event, <-chan error)
	// Replay invokes fn for each event at offsets [fromOffset, head) in
	// order, stopping at the first error.
	Replay(ctx context.Context, fromOffset uint64, fn func(feed.Event) error) error
	// Head returns the offset one past the newest known event.
	Head() uint64
}

// Engine orchestrates event consumption: it loads the resume offset from the
// store, applies events one at a time through the Processor, and persists
// the offset after each successful apply so a restart never loses its
// position.
type Engine struct {
	source    Source
	store     bountystore.Store
	processor *Processor
	logger    *zap.Logger

	readinessInterval time.Duration

	mu         sync.RWMutex
	nextOffset uint64
	synced     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new indexer engine
func NewEngine(source Source, store bountystore.Store, processor *Processor, logger *zap.Logger) *Engine {
	return &Engine{
		source:            source,
		store:             store,
		processor:         processor,
		logger:            logger,
		readinessInterval: 5 * time.Second,
	}
}

// WithReadinessInterval overrides how often the engine compares its applied
// offset against the feed head.
func (e *Engine) WithReadinessInterval(d time.Duration) *Engine {
	if d > 0 {
		e.readinessInterval = d
	}
	return e
}

// Start begins consuming the feed from the stored resume position. It
// returns once consumption is running; use Stop for graceful shutdown.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.loadOffset(ctx); err != nil {
		return fmt.Errorf("failed to load resume offset: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := e.consume(runCtx); err != nil && runCtx.Err() == nil {
			e.logger.Error("Feed consumption failed", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("indexer", "consumption").Inc()
		}
	}()
	go func() {
		defer e.wg.Done()
		e.watchReadiness(runCtx)
	}()

	e.logger.Info("Indexer engine started", zap.Uint64("resume_offset", e.NextOffset()))
	return nil
}

// Stop halts consumption and waits for in-flight work. The resume position
// is already persisted after every applied event, so no progress is lost.
func (e *Engine) Stop() {
	e.logger.Info("Stopping indexer engine")
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("Indexer engine stopped", zap.Uint64("next_offset", e.NextOffset()))
}

// IsReady reports whether the indexer has caught up to the feed head it
// observed at startup. Readiness is monotonic for the lifetime of the
// process.
func (e *Engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.synced
}

// NextOffset returns the offset of the next event to apply.
func (e *Engine) NextOffset() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextOffset
}

func (e *Engine) loadOffset(ctx context.Context) error {
	offset, ok, err := e.store.GetOffset(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.nextOffset = offset
		e.logger.Info("Loaded resume offset", zap.Uint64("offset", offset))
	} else {
		e.nextOffset = 0
		e.logger.Info("No stored offset, starting from the beginning of the feed")
	}
	return nil
}

func (e *Engine) consume(ctx context.Context) error {
	eventCh, errCh := e.source.Subscribe(ctx, e.NextOffset())

	for {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if err := e.applyAndAdvance(ctx, ev); err != nil {
				return err
			}
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("feed source error: %w", err)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applyAndAdvance applies one event and persists the new resume position.
// Both steps retry on transient failure; neither may be skipped.
func (e *Engine) applyAndAdvance(ctx context.Context, ev feed.Event) error {
	if err := e.processor.Apply(ctx, ev); err != nil {
		return err
	}

	next := ev.Offset + 1
	if err := e.processor.withRetry(ctx, func() error {
		return e.store.SetOffset(ctx, next)
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.nextOffset = next
	e.mu.Unlock()

	metrics.LastAppliedOffset.Set(float64(ev.Offset))
	return nil
}

// watchReadiness periodically compares the applied offset to the feed head
// and flips the ready flag once the mirror has caught up.
func (e *Engine) watchReadiness(ctx context.Context) {
	ticker := time.NewTicker(e.readinessInterval)
	defer ticker.Stop()

	for {
		if e.checkReadiness() {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) checkReadiness() bool {
	head := e.source.Head()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.synced && e.nextOffset >= head {
		e.synced = true
		e.logger.Info("Indexer caught up with feed head", zap.Uint64("head", head))
	}
	return e.synced
}

// Rebuild discards the derived store and replays the feed from offset zero.
// The mirror has no write path other than event application, so a full
// rebuild converges to the same state as incremental consumption. Rebuild
// must not run concurrently with Start.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.logger.Info("Rebuilding derived store from offset zero")

	if err := e.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset derived store: %w", err)
	}

	e.mu.Lock()
	e.nextOffset = 0
	e.mu.Unlock()

	if err := e.source.Replay(ctx, 0, func(ev feed.Event) error {
		return e.applyAndAdvance(ctx, ev)
	}); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	e.logger.Info("Rebuild complete", zap.Uint64("next_offset", e.NextOffset()))
	return nil
}
