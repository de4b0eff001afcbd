package indexer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/pkg/bounty"
	"github.com/noskodmi/commit2consumer/pkg/feed"
)

var (
	testFunder = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testDev    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func createdEvent(id, offset uint64) feed.Event {
	ev := feed.NewCreatedEvent(id, "https://github.com/org/repo/issues/1", testFunder, big.NewInt(100))
	ev.Offset = offset
	return ev
}

func resolvedEvent(id, offset uint64) feed.Event {
	ev := feed.NewResolvedEvent(id, testDev, big.NewInt(100))
	ev.Offset = offset
	return ev
}

func TestApplyCreated(t *testing.T) {
	store := NewMockStore()
	p := NewProcessor(store, zap.NewNop())
	ctx := context.Background()

	if err := p.Apply(ctx, createdEvent(1, 0)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	b, err := store.GetBounty(ctx, bounty.Key(1))
	if err != nil {
		t.Fatalf("GetBounty failed: %v", err)
	}
	if b.IssueURL != "https://github.com/org/repo/issues/1" || b.Amount != "100" || b.Resolved {
		t.Errorf("unexpected projection: %+v", b)
	}
	if b.Funder != testFunder.Hex() {
		t.Errorf("expected funder %s, got %s", testFunder.Hex(), b.Funder)
	}
}

func TestApplyCreatedIdempotent(t *testing.T) {
	store := NewMockStore()
	p := NewProcessor(store, zap.NewNop())
	ctx := context.Background()

	ev := createdEvent(1, 0)
	if err := p.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	before := store.snapshot()

	// Redelivery of the same event leaves the mirror unchanged
	if err := p.Apply(ctx, ev); err != nil {
		t.Fatalf("redelivered Apply failed: %v", err)
	}
	after := store.snapshot()

	if len(after) != 1 {
		t.Fatalf("expected one entity, got %d", len(after))
	}
	if before[bounty.Key(1)] != after[bounty.Key(1)] {
		t.Errorf("redelivery changed state: %+v vs %+v", before, after)
	}
}

func TestApplyResolved(t *testing.T) {
	store := NewMockStore()
	p := NewProcessor(store, zap.NewNop())
	ctx := context.Background()

	if err := p.Apply(ctx, createdEvent(1, 0)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := p.Apply(ctx, resolvedEvent(1, 1)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	b, err := store.GetBounty(ctx, bounty.Key(1))
	if err != nil {
		t.Fatalf("GetBounty failed: %v", err)
	}
	if !b.Resolved || b.Resolver != testDev.Hex() {
		t.Errorf("expected resolved entity, got %+v", b)
	}

	// Redelivered resolution is a no-op
	if err := p.Apply(ctx, resolvedEvent(1, 1)); err != nil {
		t.Fatalf("redelivered Apply failed: %v", err)
	}
	again, err := store.GetBounty(ctx, bounty.Key(1))
	if err != nil {
		t.Fatalf("GetBounty failed: %v", err)
	}
	if *again != *b {
		t.Errorf("redelivery changed state: %+v vs %+v", b, again)
	}
}

func TestApplyResolvedUnknownBounty(t *testing.T) {
	store := NewMockStore()
	p := NewProcessor(store, zap.NewNop())
	ctx := context.Background()

	// Resolution for an id the mirror has never seen is consumed without
	// error and without synthesizing an entity.
	if err := p.Apply(ctx, resolvedEvent(42, 0)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := store.snapshot(); len(got) != 0 {
		t.Errorf("expected empty mirror, got %+v", got)
	}
}

func TestApplyMalformedEvent(t *testing.T) {
	store := NewMockStore()
	p := NewProcessor(store, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		ev   feed.Event
	}{
		{"created without payload", feed.Event{Type: feed.TypeBountyCreated, Offset: 0}},
		{"resolved without payload", feed.Event{Type: feed.TypeBountyResolved, Offset: 1}},
		{"unknown type", feed.Event{Type: "bounty_exploded", Offset: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Apply(ctx, tt.ev); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		})
	}
	if got := store.snapshot(); len(got) != 0 {
		t.Errorf("expected empty mirror, got %+v", got)
	}
}

func TestApplyRetriesTransientFailure(t *testing.T) {
	store := NewMockStore()
	attempts := 0
	store.CreateBountyFunc = func(ctx context.Context, b *bounty.Bounty) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		store.CreateBountyFunc = nil
		return store.CreateBounty(ctx, b)
	}

	p := NewProcessor(store, zap.NewNop()).WithRetryDelays(time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()

	if err := p.Apply(ctx, createdEvent(1, 0)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if _, err := store.GetBounty(ctx, bounty.Key(1)); err != nil {
		t.Errorf("entity missing after retries: %v", err)
	}
}

func TestApplyRetryStopsOnCancel(t *testing.T) {
	store := NewMockStore()
	store.CreateBountyFunc = func(ctx context.Context, b *bounty.Bounty) error {
		return errors.New("still broken")
	}

	p := NewProcessor(store, zap.NewNop()).WithRetryDelays(time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Apply(ctx, createdEvent(1, 0))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}
