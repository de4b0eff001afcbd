// Package ledger implements the authoritative bounty escrow. It is a port of
// the on-chain contract to an in-process execution model: each operation is
// atomic under the ledger mutex, mirroring the serial transaction semantics
// of the original execution environment.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/internal/metrics"
	"github.com/noskodmi/commit2consumer/pkg/feed"
)

var (
	// ErrInvalidAmount is returned when creating a bounty with a
	// non-positive value
	ErrInvalidAmount = errors.New("bounty amount must be positive")

	// ErrEmptyIssueURL is returned when creating a bounty without an
	// issue reference
	ErrEmptyIssueURL = errors.New("issue url must not be empty")

	// ErrUnauthorized is returned when resolution is attempted by an
	// identity other than the authorized resolver
	ErrUnauthorized = errors.New("caller is not the authorized resolver")

	// ErrBountyNotFound is returned when the referenced bounty id has
	// never been allocated
	ErrBountyNotFound = errors.New("bounty not found")

	// ErrAlreadyResolved is returned on a second resolution attempt
	ErrAlreadyResolved = errors.New("bounty already resolved")

	// ErrNoFunds guards against a zero-amount record; it should never
	// fire for records created through CreateBounty
	ErrNoFunds = errors.New("bounty holds no funds")

	// ErrInsufficientBalance is returned when the funder cannot cover
	// the bounty value
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Record is the authoritative state of a single bounty. Fields other than
// Resolved and Resolver are immutable after creation.
type Record struct {
	ID        uint64
	IssueURL  string
	Funder    common.Address
	Amount    *big.Int
	Resolved  bool
	Resolver  common.Address
	CreatedAt time.Time
}

func (r *Record) clone() *Record {
	out := *r
	out.Amount = new(big.Int).Set(r.Amount)
	return &out
}

// Ledger holds escrowed bounty funds and enforces the resolve-once
// invariant. The single authorized resolver identity is fixed at
// construction; rotation is a deliberate non-feature.
type Ledger struct {
	mu       sync.Mutex
	resolver common.Address
	records  map[uint64]*Record
	nextID   uint64
	balances map[common.Address]*big.Int
	escrow   *big.Int
	log      *feed.Log
	logger   *zap.Logger
}

// New creates a ledger with the given authorized resolver, emitting events
// into log.
func New(resolver common.Address, log *feed.Log, logger *zap.Logger) *Ledger {
	return &Ledger{
		resolver: resolver,
		records:  make(map[uint64]*Record),
		nextID:   1,
		balances: make(map[common.Address]*big.Int),
		escrow:   new(big.Int),
		log:      log,
		logger:   logger,
	}
}

// AuthorizedResolver returns the fixed resolver identity.
func (l *Ledger) AuthorizedResolver() common.Address {
	return l.resolver
}

// Deposit credits an account with spendable funds. In an on-chain deployment
// this corresponds to the value attached to the transaction; the in-process
// ledger needs an explicit funding step.
func (l *Ledger) Deposit(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// Balance returns the spendable balance held for addr.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// EscrowBalance returns the total value currently locked for open bounties.
func (l *Ledger) EscrowBalance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.escrow)
}

// CreateBounty locks amount from the caller's balance in escrow, allocates
// the next bounty id, and emits BountyCreated. The operation either fully
// completes or leaves no trace: validation failures allocate no id.
func (l *Ledger) CreateBounty(_ context.Context, caller common.Address, issueURL string, amount *big.Int) (uint64, error) {
	if issueURL == "" {
		return 0, ErrEmptyIssueURL
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(caller, amount); err != nil {
		return 0, err
	}
	l.escrow.Add(l.escrow, amount)

	id := l.nextID
	l.nextID++

	rec := &Record{
		ID:        id,
		IssueURL:  issueURL,
		Funder:    caller,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	l.records[id] = rec

	offset := l.log.Append(feed.NewCreatedEvent(id, issueURL, caller, amount))

	metrics.BountiesCreated.Inc()
	metrics.EscrowHeld.Set(bigToFloat(l.escrow))

	l.logger.Info("Bounty created",
		zap.Uint64("id", id),
		zap.String("issue_url", issueURL),
		zap.String("funder", caller.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("feed_offset", offset))

	return id, nil
}

// ResolveBounty releases the escrowed amount for id to recipient and marks
// the bounty resolved. Only the authorized resolver may call it, and each
// bounty resolves exactly once. The resolved flip, the fund transfer and the
// BountyResolved emission happen as one atomic unit under the ledger mutex;
// any failed check leaves no partial state.
func (l *Ledger) ResolveBounty(_ context.Context, caller common.Address, id uint64, recipient common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.resolver {
		return ErrUnauthorized
	}

	rec, ok := l.records[id]
	if !ok {
		return ErrBountyNotFound
	}
	if rec.Resolved {
		return ErrAlreadyResolved
	}
	if rec.Amount.Sign() <= 0 {
		return ErrNoFunds
	}

	l.escrow.Sub(l.escrow, rec.Amount)
	l.credit(recipient, rec.Amount)
	rec.Resolved = true
	rec.Resolver = recipient

	offset := l.log.Append(feed.NewResolvedEvent(id, recipient, rec.Amount))

	metrics.BountiesResolved.Inc()
	metrics.EscrowHeld.Set(bigToFloat(l.escrow))

	l.logger.Info("Bounty resolved",
		zap.Uint64("id", id),
		zap.String("developer", recipient.Hex()),
		zap.String("amount", rec.Amount.String()),
		zap.Uint64("feed_offset", offset))

	return nil
}

// GetRecord returns a copy of the authoritative record at id. Reads for the
// frontend go through the query facade instead; this accessor exists for
// reconciliation and tests.
func (l *Ledger) GetRecord(id uint64) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, ErrBountyNotFound
	}
	return rec.clone(), nil
}

// credit adds amount to addr's balance. Caller must hold the mutex.
func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	b.Add(b, amount)
}

// debit removes amount from addr's balance. Caller must hold the mutex.
func (l *Ledger) debit(addr common.Address, amount *big.Int) error {
	b, ok := l.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
