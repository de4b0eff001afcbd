package indexerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/noskodmi/commit2consumer/pkg/bountystore"
	mghelper "github.com/noskodmi/commit2consumer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating bounties table...")
		if err := mghelper.CreateSchema(ctx, db, &bountystore.BountyDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &bountystore.BountyDao{}, "funder", "resolved")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bounties table...")
		return mghelper.DropTables(ctx, db, &bountystore.BountyDao{})
	})
}
