package bountystore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/noskodmi/commit2consumer/pkg/bounty"
)

// BountyDao is a data access object that maps directly to the 'bounties'
// table in PostgreSQL.
type BountyDao struct {
	bun.BaseModel `bun:"table:bounties,alias:b"`
	ID            string     `bun:"id,pk,type:varchar(78)"`
	IssueURL      string     `bun:"issue_url,notnull,type:text"`
	Funder        string     `bun:"funder,notnull,type:varchar(42)"`
	Amount        string     `bun:"amount,notnull,type:numeric(78,0)"`
	Resolved      bool       `bun:"resolved,notnull,default:false"`
	Resolver      *string    `bun:"resolver,type:varchar(42)"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	ResolvedAt    *time.Time `bun:"resolved_at"`
}

// IndexerStateDao is a single-row table tracking the feed resume position.
type IndexerStateDao struct {
	bun.BaseModel `bun:"table:indexer_state,alias:s"`
	ID            int64     `bun:"id,pk"`
	NextOffset    int64     `bun:"next_offset,notnull,default:0"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toBountyDao(b *bounty.Bounty) *BountyDao {
	dao := &BountyDao{
		ID:        b.ID,
		IssueURL:  b.IssueURL,
		Funder:    b.Funder,
		Amount:    b.Amount,
		Resolved:  b.Resolved,
		CreatedAt: b.CreatedAt,
	}
	if b.Resolver != "" {
		dao.Resolver = &b.Resolver
	}
	if b.ResolvedAt != nil {
		dao.ResolvedAt = b.ResolvedAt
	}
	return dao
}

func toBounty(dao *BountyDao) *bounty.Bounty {
	b := &bounty.Bounty{
		ID:        dao.ID,
		IssueURL:  dao.IssueURL,
		Funder:    dao.Funder,
		Amount:    dao.Amount,
		Resolved:  dao.Resolved,
		CreatedAt: dao.CreatedAt,
	}
	if dao.Resolver != nil {
		b.Resolver = *dao.Resolver
	}
	if dao.ResolvedAt != nil {
		b.ResolvedAt = dao.ResolvedAt
	}
	return b
}
