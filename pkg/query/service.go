// Package query exposes read-only access to the derived bounty mirror. It
// reads only from the indexer's store, never from the ledger, so read
// latency is decoupled from feed consumption latency.
package query

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/noskodmi/commit2consumer/pkg/app/errors"
	"github.com/noskodmi/commit2consumer/pkg/bounty"
	"github.com/noskodmi/commit2consumer/pkg/bountystore"
)

const defaultListLimit = 100

// Service is the read-only bounty lookup facade
type Service struct {
	store  bountystore.Store
	logger *zap.Logger
}

// NewService creates a new query facade over the derived store
func NewService(store bountystore.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetBounty returns the projected entity at id. A missing entity yields a
// ResourceNotFound service error.
func (s *Service) GetBounty(ctx context.Context, id string) (*bounty.Bounty, error) {
	b, err := s.store.GetBounty(ctx, id)
	if err != nil {
		if errors.Is(err, bountystore.ErrBountyNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, fmt.Sprintf("bounty %s not found", id))
		}
		s.logger.Error("Failed to get bounty", zap.String("id", id), zap.Error(err))
		return nil, apperrors.GeneralError(err)
	}
	return b, nil
}

// ListBounties returns up to limit projected entities, newest first. A
// non-positive limit selects the default.
func (s *Service) ListBounties(ctx context.Context, limit int) ([]*bounty.Bounty, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	bounties, err := s.store.ListBounties(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list bounties", zap.Error(err))
		return nil, apperrors.GeneralError(err)
	}
	return bounties, nil
}
