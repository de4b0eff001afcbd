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
		log.Println("creating indexer_state table...")
		return mghelper.CreateSchema(ctx, db, &bountystore.IndexerStateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping indexer_state table...")
		return mghelper.DropTables(ctx, db, &bountystore.IndexerStateDao{})
	})
}
