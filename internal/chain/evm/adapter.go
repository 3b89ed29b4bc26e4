package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm/rpc"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/ratelimit"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/circuitbreaker"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Config struct {
	Chain string
	// RateLimitRPS of zero disables client-side throttling.
	RateLimitRPS   float64
	RateLimitBurst int
	Breaker        circuitbreaker.Config
}

// Adapter exposes an EVM JSON-RPC endpoint as a chain.Client. Every call is
// throttled, guarded by a circuit breaker and counted.
type Adapter struct {
	client  rpc.RPCClient
	chain   string
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

var _ chain.Client = (*Adapter)(nil)

func NewAdapter(client rpc.RPCClient, cfg Config, logger *slog.Logger) *Adapter {
	a := &Adapter{
		client: client,
		chain:  cfg.Chain,
		logger: logger.With("component", "evm_adapter", "chain", cfg.Chain),
	}
	if cfg.RateLimitRPS > 0 {
		a.limiter = ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Chain)
	}

	breakerCfg := cfg.Breaker
	userHook := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.RPCCircuitState.WithLabelValues(cfg.Chain).Set(float64(to))
		a.logger.Warn("rpc circuit state changed", "from", from.String(), "to", to.String())
		if userHook != nil {
			userHook(from, to)
		}
	}
	a.breaker = circuitbreaker.New(breakerCfg)
	return a
}

func (a *Adapter) Chain() string {
	return a.chain
}

// call runs fn through the limiter and breaker and records the outcome.
func (a *Adapter) call(ctx context.Context, method string, fn func() error) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", method, err)
		}
	}
	err := a.breaker.Execute(fn, func(err error) bool {
		return !errors.Is(err, context.Canceled)
	})
	ratelimit.RecordRPCCall(a.chain, method, err)
	return err
}

func (a *Adapter) CurrentHead(ctx context.Context) (int64, error) {
	var head int64
	err := a.call(ctx, "eth_blockNumber", func() error {
		var err error
		head, err = a.client.GetBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return head, nil
}

func (a *Adapter) GetBlock(ctx context.Context, number int64, includeTxs bool) (*chain.Block, error) {
	var raw *rpc.Block
	err := a.call(ctx, "eth_getBlockByNumber", func() error {
		var err error
		raw, err = a.client.GetBlockByNumber(ctx, number, includeTxs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d: %w", number, chain.ErrNotFound)
	}
	block, err := convertBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("convert block %d: %w", number, err)
	}
	return block, nil
}

func (a *Adapter) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	var raw *rpc.TransactionReceipt
	err := a.call(ctx, "eth_getTransactionReceipt", func() error {
		var err error
		raw, err = a.client.GetTransactionReceipt(ctx, hash.Hex())
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), chain.ErrNotFound)
	}
	receipt, err := convertReceipt(raw)
	if err != nil {
		return nil, fmt.Errorf("convert receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// GetTransaction fetches a single transaction by hash.
func (a *Adapter) GetTransaction(ctx context.Context, hash common.Hash) (*chain.Transaction, error) {
	var raw *rpc.Transaction
	err := a.call(ctx, "eth_getTransactionByHash", func() error {
		var err error
		raw, err = a.client.GetTransactionByHash(ctx, hash.Hex())
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), chain.ErrNotFound)
	}
	tx, err := convertTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("convert transaction %s: %w", hash.Hex(), err)
	}
	return &tx, nil
}

func convertBlock(raw *rpc.Block) (*chain.Block, error) {
	number, err := rpc.ParseHexInt64(raw.Number)
	if err != nil {
		return nil, fmt.Errorf("number: %w", err)
	}
	block := &chain.Block{
		Number: number,
		Hash:   common.HexToHash(raw.Hash),
	}
	if raw.Timestamp != "" {
		ts, err := rpc.ParseHexInt64(raw.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
		block.Timestamp = time.Unix(ts, 0).UTC()
	}
	block.Transactions = make([]chain.Transaction, 0, len(raw.Transactions))
	for _, rawTx := range raw.Transactions {
		if rawTx == nil {
			continue
		}
		tx, err := convertTransaction(rawTx)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", rawTx.Hash, err)
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

func convertTransaction(raw *rpc.Transaction) (chain.Transaction, error) {
	value, err := decodeQuantity(raw.Value)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("value: %w", err)
	}
	input, err := decodeData(raw.Input)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("input: %w", err)
	}
	return chain.Transaction{
		Hash:  common.HexToHash(raw.Hash),
		From:  common.HexToAddress(raw.From),
		To:    optionalAddress(raw.To),
		Value: value,
		Input: input,
	}, nil
}

func convertReceipt(raw *rpc.TransactionReceipt) (*chain.Receipt, error) {
	receipt := &chain.Receipt{
		TxHash: common.HexToHash(raw.TransactionHash),
		From:   common.HexToAddress(raw.From),
		To:     optionalAddress(raw.To),
		Status: 1,
	}
	if raw.Status != "" {
		status, err := rpc.ParseHexInt64(raw.Status)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		receipt.Status = uint64(status)
	}
	if raw.BlockNumber != "" {
		n, err := rpc.ParseHexInt64(raw.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block number: %w", err)
		}
		receipt.BlockNumber = n
	}

	receipt.Logs = make([]chain.Log, 0, len(raw.Logs))
	for _, rawLog := range raw.Logs {
		if rawLog == nil {
			continue
		}
		lg, err := convertLog(rawLog)
		if err != nil {
			return nil, err
		}
		receipt.Logs = append(receipt.Logs, lg)
	}
	return receipt, nil
}

func convertLog(raw *rpc.Log) (chain.Log, error) {
	data, err := decodeData(raw.Data)
	if err != nil {
		return chain.Log{}, fmt.Errorf("log data: %w", err)
	}
	var index int64
	if raw.LogIndex != "" {
		if index, err = rpc.ParseHexInt64(raw.LogIndex); err != nil {
			return chain.Log{}, fmt.Errorf("log index: %w", err)
		}
	}
	topics := make([]common.Hash, len(raw.Topics))
	for i, t := range raw.Topics {
		topics[i] = common.HexToHash(t)
	}
	return chain.Log{
		Address: common.HexToAddress(raw.Address),
		Topics:  topics,
		Data:    data,
		Index:   uint(index),
		Removed: raw.Removed,
	}, nil
}

func decodeQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return new(big.Int), nil
	}
	return hexutil.DecodeBig(s)
}

func decodeData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

func optionalAddress(s string) *common.Address {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	addr := common.HexToAddress(s)
	return &addr
}
