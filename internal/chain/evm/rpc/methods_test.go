package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBlockNumber(t *testing.T) {
	var methods []string
	client := newTestClient(resultHandler(t, &methods, `"0x1b4"`))

	n, err := client.GetBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(436), n)
	assert.Equal(t, []string{"eth_blockNumber"}, methods)
}

func TestChainID(t *testing.T) {
	var methods []string
	client := newTestClient(resultHandler(t, &methods, `"0x58"`))

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(88), id)
	assert.Equal(t, []string{"eth_chainId"}, methods)
}

func TestGetBlockByNumber_WithTransactions(t *testing.T) {
	client := newTestClient(resultHandler(t, nil, `{
		"number":"0x10","hash":"0xabc","parentHash":"0xdef","timestamp":"0x65000000",
		"transactions":[
			{"hash":"0x01","from":"0xaaa","to":"0xbbb","value":"0x0","input":"0xa9059cbb"},
			{"hash":"0x02","from":"0xaaa","to":"0xccc","value":"0xde0b6b3a7640000","input":"0x"}
		]}`))

	block, err := client.GetBlockByNumber(context.Background(), 16, true)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, "0x10", block.Number)
	require.Len(t, block.Transactions, 2)
	assert.Equal(t, "0xa9059cbb", block.Transactions[0].Input)
	assert.Equal(t, "0xde0b6b3a7640000", block.Transactions[1].Value)
}

func TestGetBlockByNumber_Null(t *testing.T) {
	client := newTestClient(resultHandler(t, nil, `null`))

	block, err := client.GetBlockByNumber(context.Background(), 99, true)
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestGetTransactionReceipt(t *testing.T) {
	client := newTestClient(resultHandler(t, nil, `{
		"transactionHash":"0x01","status":"0x1","from":"0xaaa","to":"0xbbb",
		"logs":[{"address":"0xtoken","topics":["0xddf252ad"],"data":"0x01","logIndex":"0x3"}]}`))

	receipt, err := client.GetTransactionReceipt(context.Background(), "0x01")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, "0x1", receipt.Status)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, "0x3", receipt.Logs[0].LogIndex)
}

func TestGetTransactionReceipt_Null(t *testing.T) {
	client := newTestClient(resultHandler(t, nil, `null`))

	receipt, err := client.GetTransactionReceipt(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestGetTransactionByHash(t *testing.T) {
	client := newTestClient(resultHandler(t, nil, `{"hash":"0x01","from":"0xaaa","value":"0x2"}`))

	tx, err := client.GetTransactionByHash(context.Background(), "0x01")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "0x2", tx.Value)
}

func TestParseHexInt64(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0x0", want: 0},
		{in: "0x", want: 0},
		{in: "0X1A", want: 26},
		{in: " 0xff ", want: 255},
		{in: "", wantErr: true},
		{in: "0xzz", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHexInt64(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatHexInt64(t *testing.T) {
	assert.Equal(t, "0x0", formatHexInt64(0))
	assert.Equal(t, "0x1b4", formatHexInt64(436))
}
