// Package feed defines the append-only event log emitted by the bounty
// ledger and consumed by the indexer. Events are immutable once appended and
// form the sole channel between the two components.
package feed

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Type tags the event variant
type Type string

const (
	TypeBountyCreated  Type = "bounty_created"
	TypeBountyResolved Type = "bounty_resolved"
)

// BountyCreated is emitted once per bounty, at creation time.
type BountyCreated struct {
	ID       uint64         `json:"id"`
	IssueURL string         `json:"issue_url"`
	Funder   common.Address `json:"funder"`
	Amount   *big.Int       `json:"amount"`
}

// BountyResolved is emitted exactly once per bounty, at resolution time.
type BountyResolved struct {
	ID        uint64         `json:"id"`
	Developer common.Address `json:"developer"`
	Amount    *big.Int       `json:"amount"`
}

// Event is a tagged-variant feed entry. Exactly one of Created or Resolved
// is set, matching Type.
type Event struct {
	// Offset is the position of the event in the log, starting at 0.
	Offset uint64 `json:"offset"`
	// DeliveryID identifies the emission for tracing. Consumers must not
	// use it for dedup: redelivered events keep their offset but may be
	// observed more than once.
	DeliveryID string          `json:"delivery_id"`
	Type       Type            `json:"type"`
	Created    *BountyCreated  `json:"created,omitempty"`
	Resolved   *BountyResolved `json:"resolved,omitempty"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// NewCreatedEvent builds a BountyCreated event envelope
func NewCreatedEvent(id uint64, issueURL string, funder common.Address, amount *big.Int) Event {
	return Event{
		DeliveryID: uuid.New().String(),
		Type:       TypeBountyCreated,
		Created: &BountyCreated{
			ID:       id,
			IssueURL: issueURL,
			Funder:   funder,
			Amount:   new(big.Int).Set(amount),
		},
		EmittedAt: time.Now().UTC(),
	}
}

// NewResolvedEvent builds a BountyResolved event envelope
func NewResolvedEvent(id uint64, developer common.Address, amount *big.Int) Event {
	return Event{
		DeliveryID: uuid.New().String(),
		Type:       TypeBountyResolved,
		Resolved: &BountyResolved{
			ID:        id,
			Developer: developer,
			Amount:    new(big.Int).Set(amount),
		},
		EmittedAt: time.Now().UTC(),
	}
}
