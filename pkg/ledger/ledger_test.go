package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/pkg/feed"
)

var (
	resolverAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	funderAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	devAddr      = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestLedger() (*Ledger, *feed.Log) {
	log := feed.NewLog(0)
	return New(resolverAddr, log, zap.NewNop()), log
}

func TestCreateBounty(t *testing.T) {
	l, log := newTestLedger()
	ctx := context.Background()

	l.Deposit(funderAddr, big.NewInt(1000))

	id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/1", big.NewInt(400))
	if err != nil {
		t.Fatalf("CreateBounty failed: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id to be 1, got %d", id)
	}

	if got := l.Balance(funderAddr); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("expected funder balance 600, got %s", got)
	}
	if got := l.EscrowBalance(); got.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("expected escrow 400, got %s", got)
	}

	if log.Head() != 1 {
		t.Fatalf("expected one feed event, head is %d", log.Head())
	}
	var events []feed.Event
	if err := log.Replay(ctx, 0, func(ev feed.Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	ev := events[0]
	if ev.Type != feed.TypeBountyCreated || ev.Created == nil {
		t.Fatalf("expected BountyCreated event, got %+v", ev)
	}
	if ev.Created.ID != id || ev.Created.Funder != funderAddr {
		t.Errorf("event payload mismatch: %+v", ev.Created)
	}
	if ev.Created.Amount.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("expected event amount 400, got %s", ev.Created.Amount)
	}
}

func TestCreateBountyValidation(t *testing.T) {
	l, log := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(100))

	tests := []struct {
		name     string
		issueURL string
		amount   *big.Int
		wantErr  error
	}{
		{"empty issue url", "", big.NewInt(10), ErrEmptyIssueURL},
		{"nil amount", "https://github.com/org/repo/issues/1", nil, ErrInvalidAmount},
		{"zero amount", "https://github.com/org/repo/issues/1", big.NewInt(0), ErrInvalidAmount},
		{"negative amount", "https://github.com/org/repo/issues/1", big.NewInt(-5), ErrInvalidAmount},
		{"insufficient balance", "https://github.com/org/repo/issues/1", big.NewInt(101), ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateBounty(ctx, funderAddr, tt.issueURL, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Failed creations allocate no ids and emit no events
	if log.Head() != 0 {
		t.Errorf("expected no feed events after failed creations, head is %d", log.Head())
	}
	id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/1", big.NewInt(50))
	if err != nil {
		t.Fatalf("CreateBounty failed: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id 1 after failed attempts, got %d", id)
	}
}

func TestCreateBountyDenseIDs(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(1000))

	for want := uint64(1); want <= 3; want++ {
		id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/7", big.NewInt(10))
		if err != nil {
			t.Fatalf("CreateBounty failed: %v", err)
		}
		if id != want {
			t.Errorf("expected id %d, got %d", want, id)
		}
	}
}

func TestResolveBounty(t *testing.T) {
	l, log := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(500))

	id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/2", big.NewInt(500))
	if err != nil {
		t.Fatalf("CreateBounty failed: %v", err)
	}

	if err := l.ResolveBounty(ctx, resolverAddr, id, devAddr); err != nil {
		t.Fatalf("ResolveBounty failed: %v", err)
	}

	if got := l.Balance(devAddr); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("expected developer balance 500, got %s", got)
	}
	if got := l.EscrowBalance(); got.Sign() != 0 {
		t.Errorf("expected empty escrow, got %s", got)
	}

	rec, err := l.GetRecord(id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !rec.Resolved || rec.Resolver != devAddr {
		t.Errorf("record not marked resolved: %+v", rec)
	}

	if log.Head() != 2 {
		t.Fatalf("expected two feed events, head is %d", log.Head())
	}
	var last feed.Event
	if err := log.Replay(ctx, 1, func(ev feed.Event) error {
		last = ev
		return nil
	}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if last.Type != feed.TypeBountyResolved || last.Resolved == nil {
		t.Fatalf("expected BountyResolved event, got %+v", last)
	}
	if last.Resolved.ID != id || last.Resolved.Developer != devAddr {
		t.Errorf("event payload mismatch: %+v", last.Resolved)
	}
}

func TestResolveBountyErrors(t *testing.T) {
	l, log := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(100))

	id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/3", big.NewInt(100))
	if err != nil {
		t.Fatalf("CreateBounty failed: %v", err)
	}

	if err := l.ResolveBounty(ctx, devAddr, id, devAddr); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := l.ResolveBounty(ctx, resolverAddr, 99, devAddr); !errors.Is(err, ErrBountyNotFound) {
		t.Errorf("expected ErrBountyNotFound, got %v", err)
	}

	// Failed attempts moved no funds and emitted nothing
	if got := l.Balance(devAddr); got.Sign() != 0 {
		t.Errorf("expected developer balance 0 after failed resolves, got %s", got)
	}
	if got := l.EscrowBalance(); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected escrow 100 after failed resolves, got %s", got)
	}
	if log.Head() != 1 {
		t.Errorf("expected only the creation event, head is %d", log.Head())
	}

	if err := l.ResolveBounty(ctx, resolverAddr, id, devAddr); err != nil {
		t.Fatalf("ResolveBounty failed: %v", err)
	}
	if err := l.ResolveBounty(ctx, resolverAddr, id, devAddr); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}

	// The second attempt paid nothing out
	if got := l.Balance(devAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected developer balance 100, got %s", got)
	}
}

func TestResolveBountyConcurrent(t *testing.T) {
	l, log := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(100))

	id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/4", big.NewInt(100))
	if err != nil {
		t.Fatalf("CreateBounty failed: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.ResolveBounty(ctx, resolverAddr, id, devAddr)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyResolved):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one successful resolve, got %d", succeeded)
	}

	if got := l.Balance(devAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected single payout of 100, got %s", got)
	}
	if log.Head() != 2 {
		t.Errorf("expected exactly one resolution event, head is %d", log.Head())
	}
}

func TestEscrowConservation(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	l.Deposit(funderAddr, big.NewInt(1000))

	ids := make([]uint64, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := l.CreateBounty(ctx, funderAddr, "https://github.com/org/repo/issues/5", big.NewInt(100))
		if err != nil {
			t.Fatalf("CreateBounty failed: %v", err)
		}
		ids = append(ids, id)
	}

	if err := l.ResolveBounty(ctx, resolverAddr, ids[0], devAddr); err != nil {
		t.Fatalf("ResolveBounty failed: %v", err)
	}
	if err := l.ResolveBounty(ctx, resolverAddr, ids[2], devAddr); err != nil {
		t.Fatalf("ResolveBounty failed: %v", err)
	}

	total := new(big.Int)
	total.Add(total, l.Balance(funderAddr))
	total.Add(total, l.Balance(devAddr))
	total.Add(total, l.EscrowBalance())
	if total.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("funds not conserved: total %s", total)
	}
	if got := l.EscrowBalance(); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("expected escrow 200 for two open bounties, got %s", got)
	}
}
