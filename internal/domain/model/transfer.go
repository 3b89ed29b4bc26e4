package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TransferEvent is one decoded ERC-20 Transfer log with the amount already
// scaled by the token's decimals.
type TransferEvent struct {
	Asset    common.Address
	Symbol   string
	From     common.Address
	To       common.Address
	Amount   decimal.Decimal
	LogIndex uint
}

// NativeWithdrawal is a wrapped-native Withdrawal log: src burned Amount of
// the wrapped token and received the same amount of native currency.
type NativeWithdrawal struct {
	Src      common.Address
	Amount   decimal.Decimal
	LogIndex uint
}
