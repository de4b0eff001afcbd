// Package bountystore persists the derived bounty mirror maintained by the
// indexer. The store is a materialized view over the ledger's event feed: it
// has no write path other than event application and can always be rebuilt
// by replaying the feed from offset zero.
package bountystore

import (
	"context"
	"errors"

	"github.com/noskodmi/commit2consumer/pkg/bounty"
)

// ErrBountyNotFound is returned when a bounty lookup finds no matching record.
var ErrBountyNotFound = errors.New("bounty not found")

// Store defines the derived bounty mirror operations used by the indexer and
// the query facade. All write operations are idempotent so redundant or
// redelivering consumers cannot diverge the mirror.
type Store interface {
	// CreateBounty inserts the projected entity if no entity exists at
	// its id. Re-applying an identical creation is a no-op.
	CreateBounty(ctx context.Context, b *bounty.Bounty) error

	// MarkResolved flips the entity at id to resolved and records the
	// resolver. Returns ErrBountyNotFound when no entity exists at id;
	// applying the same resolution twice leaves state unchanged.
	MarkResolved(ctx context.Context, id, resolver string) error

	// GetBounty returns the projected entity at id, or ErrBountyNotFound.
	GetBounty(ctx context.Context, id string) (*bounty.Bounty, error)

	// ListBounties returns up to limit entities, newest first.
	ListBounties(ctx context.Context, limit int) ([]*bounty.Bounty, error)

	// GetOffset returns the feed offset after the last applied event.
	// ok is false when no event has ever been applied.
	GetOffset(ctx context.Context) (offset uint64, ok bool, err error)

	// SetOffset records the resume position after a successful apply.
	SetOffset(ctx context.Context, offset uint64) error

	// Reset deletes all projected entities and the resume position,
	// in preparation for a full rebuild from offset zero.
	Reset(ctx context.Context) error
}
