package bountystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/noskodmi/commit2consumer/pkg/bounty"
)

// indexer_state is a single-row table
const stateRowID = 1

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the bounty store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateBounty(ctx context.Context, b *bounty.Bounty) error {
	dao := toBountyDao(b)

	// Duplicate deliveries of the same creation event are expected from
	// an at-least-once feed; the conflict target makes them no-ops.
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create bounty: %w", err)
	}
	return nil
}

func (s *pgStore) MarkResolved(ctx context.Context, id, resolver string) error {
	res, err := s.db.NewUpdate().
		Model((*BountyDao)(nil)).
		Set("resolved = TRUE").
		Set("resolver = ?", resolver).
		Set("resolved_at = COALESCE(resolved_at, NOW())").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark bounty resolved: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrBountyNotFound
	}
	return nil
}

func (s *pgStore) GetBounty(ctx context.Context, id string) (*bounty.Bounty, error) {
	dao := new(BountyDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBountyNotFound
		}
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	return toBounty(dao), nil
}

func (s *pgStore) ListBounties(ctx context.Context, limit int) ([]*bounty.Bounty, error) {
	var daos []BountyDao
	err := s.db.NewSelect().
		Model(&daos).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	bounties := make([]*bounty.Bounty, len(daos))
	for i := range daos {
		bounties[i] = toBounty(&daos[i])
	}
	return bounties, nil
}

func (s *pgStore) GetOffset(ctx context.Context) (uint64, bool, error) {
	dao := new(IndexerStateDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get indexer offset: %w", err)
	}
	return uint64(dao.NextOffset), true, nil
}

func (s *pgStore) SetOffset(ctx context.Context, offset uint64) error {
	dao := &IndexerStateDao{
		ID:         stateRowID,
		NextOffset: int64(offset),
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("next_offset = EXCLUDED.next_offset").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set indexer offset: %w", err)
	}
	return nil
}

func (s *pgStore) Reset(ctx context.Context) error {
	if _, err := s.db.NewDelete().
		Model((*BountyDao)(nil)).
		Where("1=1").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset bounties: %w", err)
	}
	if _, err := s.db.NewDelete().
		Model((*IndexerStateDao)(nil)).
		Where("id = ?", stateRowID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset indexer state: %w", err)
	}
	return nil
}
