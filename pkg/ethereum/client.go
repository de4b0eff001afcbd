// Package ethereum connects the indexer to an on-chain deployment of the
// bounty ledger contract. It polls the JSON-RPC endpoint for contract logs
// and republishes them on the local event log, so the rest of the pipeline
// is identical whether events originate in-process or on-chain.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/noskodmi/commit2consumer/pkg/config"
)

// ledgerABI covers the two events the bounty ledger contract emits.
const ledgerABI = `[
	{"type":"event","name":"BountyCreated","inputs":[
		{"name":"id","type":"uint256","indexed":true},
		{"name":"funder","type":"address","indexed":true},
		{"name":"issueUrl","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"BountyResolved","inputs":[
		{"name":"id","type":"uint256","indexed":true},
		{"name":"developer","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}
	]}
]`

// Client represents an Ethereum client bound to the bounty ledger contract
type Client struct {
	config   *config.EthereumConfig
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	logger   *zap.Logger
}

// NewClient creates a new Ethereum client
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}

	contract := common.HexToAddress(cfg.LedgerContract)

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("ledger_contract", contract.Hex()))

	return &Client{
		config:   cfg,
		client:   client,
		contract: contract,
		abi:      parsed,
		logger:   logger,
	}, nil
}

// Close closes the Ethereum client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// GetLatestBlockNumber gets the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

func topicToID(topic common.Hash) uint64 {
	return new(big.Int).SetBytes(topic.Bytes()).Uint64()
}

func topicToAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}
