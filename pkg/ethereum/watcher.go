package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	eth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/pkg/feed"
)

// Watcher polls the ledger contract for logs and republishes them on the
// local event log. Polling is used for HTTP RPC compatibility.
type Watcher struct {
	client *Client
	log    *feed.Log
	logger *zap.Logger

	mu           sync.Mutex
	currentBlock uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher starting at the configured deployment block
func NewWatcher(client *Client, log *feed.Log, logger *zap.Logger) *Watcher {
	return &Watcher{
		client:       client,
		log:          log,
		logger:       logger,
		currentBlock: uint64(client.config.StartBlock),
	}
}

// Start launches the polling loop
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop halts polling and waits for the loop to exit
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	w.logger.Info("Starting ledger event poller",
		zap.Uint64("from_block", w.currentBlock))

	ticker := time.NewTicker(w.client.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Warn("Failed to poll ledger events", zap.Error(err))
			}
		}
	}
}

// poll queries logs from currentBlock+1 to the latest block and advances
// the cursor only after every log in the range was republished.
func (w *Watcher) poll(ctx context.Context) error {
	latestBlock, err := w.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	from := w.currentBlock
	w.mu.Unlock()

	if latestBlock <= from {
		return nil
	}

	query := eth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from + 1),
		ToBlock:   new(big.Int).SetUint64(latestBlock),
		Addresses: []common.Address{w.client.contract},
	}

	logs, err := w.client.client.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter ledger logs: %w", err)
	}

	for i := range logs {
		if err := w.republish(&logs[i]); err != nil {
			w.logger.Error("Failed to republish ledger log",
				zap.Error(err),
				zap.String("tx_hash", logs[i].TxHash.Hex()),
				zap.Uint64("block", logs[i].BlockNumber))
		}
	}

	w.mu.Lock()
	w.currentBlock = latestBlock
	w.mu.Unlock()
	return nil
}

func (w *Watcher) republish(lg *types.Log) error {
	if len(lg.Topics) == 0 {
		return fmt.Errorf("log without topics")
	}

	event, err := w.client.abi.EventByID(lg.Topics[0])
	if err != nil {
		// Not one of the ledger events, nothing to do
		return nil
	}

	switch event.Name {
	case "BountyCreated":
		if len(lg.Topics) < 3 {
			return fmt.Errorf("BountyCreated log with %d topics", len(lg.Topics))
		}
		values, err := w.client.abi.Unpack("BountyCreated", lg.Data)
		if err != nil {
			return fmt.Errorf("failed to unpack BountyCreated: %w", err)
		}
		issueURL, ok := values[0].(string)
		if !ok {
			return fmt.Errorf("unexpected issueUrl type %T", values[0])
		}
		amount, ok := values[1].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected amount type %T", values[1])
		}

		ev := feed.NewCreatedEvent(
			topicToID(lg.Topics[1]),
			issueURL,
			topicToAddress(lg.Topics[2]),
			amount,
		)
		w.log.Append(ev)

	case "BountyResolved":
		if len(lg.Topics) < 3 {
			return fmt.Errorf("BountyResolved log with %d topics", len(lg.Topics))
		}
		values, err := w.client.abi.Unpack("BountyResolved", lg.Data)
		if err != nil {
			return fmt.Errorf("failed to unpack BountyResolved: %w", err)
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected amount type %T", values[0])
		}

		ev := feed.NewResolvedEvent(
			topicToID(lg.Topics[1]),
			topicToAddress(lg.Topics[2]),
			amount,
		)
		w.log.Append(ev)
	}

	return nil
}
