package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/internal/metrics"
	"github.com/noskodmi/commit2consumer/pkg/bounty"
	"github.com/noskodmi/commit2consumer/pkg/bountystore"
	"github.com/noskodmi/commit2consumer/pkg/feed"
)

const (
	defaultRetryInitialDelay = 100 * time.Millisecond
	defaultRetryMaxDelay     = 30 * time.Second
)

// Processor applies feed events to the derived store. Every handler is
// idempotent: the feed delivers at least once, and redundant consumers may
// apply the same event concurrently.
type Processor struct {
	store             bountystore.Store
	logger            *zap.Logger
	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration
}

// NewProcessor creates an event processor over the given store
func NewProcessor(store bountystore.Store, logger *zap.Logger) *Processor {
	return &Processor{
		store:             store,
		logger:            logger,
		retryInitialDelay: defaultRetryInitialDelay,
		retryMaxDelay:     defaultRetryMaxDelay,
	}
}

// WithRetryDelays overrides the transient-failure backoff bounds
func (p *Processor) WithRetryDelays(initial, max time.Duration) *Processor {
	if initial > 0 {
		p.retryInitialDelay = initial
	}
	if max > 0 {
		p.retryMaxDelay = max
	}
	return p
}

// Apply applies a single event to the store. Transient store failures are
// retried with exponential backoff until ctx is canceled: an event is never
// skipped, since skipping would break ordering for later events on the same
// id. Recoverable anomalies (resolution for an unknown id, malformed event)
// are logged and consume the event without error.
func (p *Processor) Apply(ctx context.Context, ev feed.Event) error {
	return p.withRetry(ctx, func() error {
		return p.applyOnce(ctx, ev)
	})
}

func (p *Processor) applyOnce(ctx context.Context, ev feed.Event) error {
	switch ev.Type {
	case feed.TypeBountyCreated:
		if ev.Created == nil {
			p.malformed(ev)
			return nil
		}
		return p.onBountyCreated(ctx, ev)
	case feed.TypeBountyResolved:
		if ev.Resolved == nil {
			p.malformed(ev)
			return nil
		}
		return p.onBountyResolved(ctx, ev)
	default:
		p.malformed(ev)
		return nil
	}
}

// onBountyCreated projects a creation event into the store. Duplicate
// deliveries are absorbed by the store's insert-if-absent semantics.
func (p *Processor) onBountyCreated(ctx context.Context, ev feed.Event) error {
	created := ev.Created
	entity := &bounty.Bounty{
		ID:        bounty.Key(created.ID),
		IssueURL:  created.IssueURL,
		Funder:    created.Funder.Hex(),
		Amount:    created.Amount.String(),
		Resolved:  false,
		CreatedAt: ev.EmittedAt,
	}

	if err := p.store.CreateBounty(ctx, entity); err != nil {
		return fmt.Errorf("failed to project creation of bounty %s: %w", entity.ID, err)
	}

	metrics.EventsApplied.WithLabelValues(string(feed.TypeBountyCreated)).Inc()
	p.logger.Debug("Applied bounty creation",
		zap.String("id", entity.ID),
		zap.Uint64("offset", ev.Offset))
	return nil
}

// onBountyResolved marks the projected entity resolved. A resolution for an
// id the store has never seen signals an indexing gap or an out-of-range id;
// the entity cannot be synthesized from the resolution alone, so the event
// is logged and skipped rather than failing the loop.
func (p *Processor) onBountyResolved(ctx context.Context, ev feed.Event) error {
	resolved := ev.Resolved
	id := bounty.Key(resolved.ID)

	err := p.store.MarkResolved(ctx, id, resolved.Developer.Hex())
	if errors.Is(err, bountystore.ErrBountyNotFound) {
		p.logger.Warn("Resolution event for unknown bounty, skipping",
			zap.String("id", id),
			zap.Uint64("offset", ev.Offset))
		metrics.EventAnomalies.WithLabelValues("unknown_bounty").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to project resolution of bounty %s: %w", id, err)
	}

	metrics.EventsApplied.WithLabelValues(string(feed.TypeBountyResolved)).Inc()
	p.logger.Debug("Applied bounty resolution",
		zap.String("id", id),
		zap.Uint64("offset", ev.Offset))
	return nil
}

// malformed records an event that violates the expected shape. The feed is a
// trusted, schema-validated source, so this indicates a producer bug.
func (p *Processor) malformed(ev feed.Event) {
	p.logger.Error("Malformed feed event, skipping",
		zap.String("type", string(ev.Type)),
		zap.Uint64("offset", ev.Offset),
		zap.String("delivery_id", ev.DeliveryID))
	metrics.EventAnomalies.WithLabelValues("malformed_event").Inc()
}

// withRetry runs fn until it succeeds or ctx is canceled, backing off
// exponentially between attempts.
func (p *Processor) withRetry(ctx context.Context, fn func() error) error {
	delay := p.retryInitialDelay
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Warn("Derived store write failed, retrying",
			zap.Error(err),
			zap.Duration("delay", delay))
		metrics.StoreRetries.Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > p.retryMaxDelay {
			delay = p.retryMaxDelay
		}
	}
}
