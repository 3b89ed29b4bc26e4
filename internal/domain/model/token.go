package model

import "github.com/ethereum/go-ethereum/common"

// Token is an ERC-20 asset known to the registry.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
	IsQuote  bool           `json:"isQuote"`
}

// NativeCurrency describes the chain's gas currency and its wrapped ERC-20.
type NativeCurrency struct {
	Symbol   string
	Decimals int
	Wrapped  common.Address
}
