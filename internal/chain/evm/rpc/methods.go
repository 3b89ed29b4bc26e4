package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func (c *Client) ChainID(ctx context.Context) (int64, error) {
	return c.hexQuantity(ctx, "eth_chainId")
}

func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	return c.hexQuantity(ctx, "eth_blockNumber")
}

func (c *Client) hexQuantity(ctx context.Context, method string) (int64, error) {
	result, err := c.call(ctx, method, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}

	var raw string
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("unmarshal %s: %w", method, err)
	}
	value, err := ParseHexInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", method, err)
	}
	return value, nil
}

// GetBlockByNumber returns nil without error when the node has no such block yet.
func (c *Client) GetBlockByNumber(ctx context.Context, blockNumber int64, includeFullTx bool) (*Block, error) {
	var block Block
	found, err := c.fetchObject(ctx, "eth_getBlockByNumber", []interface{}{formatHexInt64(blockNumber), includeFullTx}, &block)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber(%d): %w", blockNumber, err)
	}
	if !found {
		return nil, nil
	}
	return &block, nil
}

func (c *Client) GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	found, err := c.fetchObject(ctx, "eth_getTransactionByHash", []interface{}{hash}, &tx)
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash(%s): %w", hash, err)
	}
	if !found {
		return nil, nil
	}
	return &tx, nil
}

// GetTransactionReceipt returns nil without error for pending or unknown transactions.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error) {
	var receipt TransactionReceipt
	found, err := c.fetchObject(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &receipt)
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt(%s): %w", hash, err)
	}
	if !found {
		return nil, nil
	}
	return &receipt, nil
}

func (c *Client) fetchObject(ctx context.Context, method string, params []interface{}, out interface{}) (bool, error) {
	result, err := c.call(ctx, method, params)
	if err != nil {
		return false, err
	}
	if len(result) == 0 || string(result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return false, fmt.Errorf("unmarshal result: %w", err)
	}
	return true, nil
}

func ParseHexInt64(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 63)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return int64(parsed), nil
}

func formatHexInt64(value int64) string {
	return fmt.Sprintf("0x%x", value)
}
