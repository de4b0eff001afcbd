package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/pkg/api"
	apphttp "github.com/noskodmi/commit2consumer/pkg/app/http"
	"github.com/noskodmi/commit2consumer/pkg/bountystore"
	"github.com/noskodmi/commit2consumer/pkg/config"
	"github.com/noskodmi/commit2consumer/pkg/ethereum"
	"github.com/noskodmi/commit2consumer/pkg/feed"
	"github.com/noskodmi/commit2consumer/pkg/indexer"
	"github.com/noskodmi/commit2consumer/pkg/ledger"
	"github.com/noskodmi/commit2consumer/pkg/pgutil"
	"github.com/noskodmi/commit2consumer/pkg/query"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting bounty escrow service")

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	store := bountystore.NewStore(db)

	// Event log shared between the ledger (producer) and indexer (consumer)
	eventLog := feed.NewLog(cfg.Ledger.FeedPollInterval)

	resolver := common.HexToAddress(cfg.Ledger.AuthorizedResolver)
	bountyLedger := ledger.New(resolver, eventLog, logger)

	// Optional on-chain source: republishes contract logs onto the local
	// event log so the indexer path stays the same.
	if cfg.Ethereum.RPCURL != "" {
		ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Ethereum client", zap.Error(err))
		}
		defer ethClient.Close()

		watcher := ethereum.NewWatcher(ethClient, eventLog, logger)
		watcher.Start(context.Background())
		defer watcher.Stop()
	}

	processor := indexer.NewProcessor(store, logger).
		WithRetryDelays(cfg.Indexer.RetryInitialDelay, cfg.Indexer.RetryMaxDelay)
	engine := indexer.NewEngine(eventLog, store, processor, logger).
		WithReadinessInterval(cfg.Indexer.ReadinessInterval)
	if err := engine.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start indexer engine", zap.Error(err))
	}
	defer engine.Stop()

	querySvc := query.NewService(store, logger)
	handler := api.NewHandler(bountyLedger, querySvc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Returns 503 until the indexer catches up with the feed head
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled")
	}

	r.Route("/api/v1", handler.Routes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := apphttp.ServeAndWait(ctx, r, logger, &cfg.Server); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Bounty escrow service stopped")
}
