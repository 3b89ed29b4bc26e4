package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when the node has no block or receipt for the
// requested key yet.
var ErrNotFound = errors.New("not found")

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/Godz-Eyes/godz-eyes-bot/internal/chain Client

// Client is the read-only view of an EVM node used by the poller and the
// transaction processor.
type Client interface {
	// CurrentHead returns the latest block number known to the node.
	CurrentHead(ctx context.Context) (int64, error)

	// GetBlock returns the block at number. Transactions are populated only
	// when includeTxs is set.
	GetBlock(ctx context.Context, number int64, includeTxs bool) (*Block, error)

	// GetTransactionReceipt returns the receipt for hash, or ErrNotFound.
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

type Block struct {
	Number       int64
	Hash         common.Hash
	Timestamp    time.Time
	Transactions []Transaction
}

type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address
	Value *big.Int
	Input []byte
}

// HasCallData reports whether the transaction carries contract call data.
// Plain value transfers have none.
func (t Transaction) HasCallData() bool {
	return len(t.Input) > 0
}

type Receipt struct {
	TxHash      common.Hash
	BlockNumber int64
	Status      uint64
	From        common.Address
	To          *common.Address
	Logs        []Log
}

func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	Index   uint
	Removed bool
}
