package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

func (d Direction) String() string {
	return string(d)
}

// SwapAction is one directional trade attributed to a participant of a
// transaction. QuoteAddress is the zero address when the quote side is the
// native currency.
type SwapAction struct {
	Direction    Direction
	TokenSymbol  string
	QuoteSymbol  string
	AmountToken  decimal.Decimal
	AmountQuote  decimal.Decimal
	Participant  common.Address
	TokenAddress common.Address
	QuoteAddress common.Address
	Rule         string
}

func (a SwapAction) String() string {
	return fmt.Sprintf("%s(%s, %s, %s, %s)", a.Direction, a.TokenSymbol, a.QuoteSymbol,
		a.AmountToken.String(), a.AmountQuote.String())
}

// AlertKey identifies an alert for deduplication.
type AlertKey struct {
	TxHash      common.Hash
	TokenSymbol string
	Direction   Direction
}

func NewAlertKey(txHash common.Hash, action SwapAction) AlertKey {
	return AlertKey{TxHash: txHash, TokenSymbol: action.TokenSymbol, Direction: action.Direction}
}

func (k AlertKey) String() string {
	return strings.Join([]string{k.TxHash.Hex(), k.TokenSymbol, string(k.Direction)}, "_")
}
