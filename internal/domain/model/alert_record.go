package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertRecord is the persisted history row for a dispatched trade alert.
type AlertRecord struct {
	ID          uuid.UUID       `db:"id"`
	Chain       Chain           `db:"chain"`
	TxHash      string          `db:"tx_hash"`
	BlockNumber int64           `db:"block_number"`
	Direction   Direction       `db:"direction"`
	TokenSymbol string          `db:"token_symbol"`
	QuoteSymbol string          `db:"quote_symbol"`
	AmountToken decimal.Decimal `db:"amount_token"`
	AmountQuote decimal.Decimal `db:"amount_quote"`
	Participant string          `db:"participant"`
	Rule        string          `db:"rule"`
	Delivered   bool            `db:"delivered"`
	CreatedAt   time.Time       `db:"created_at"`
}
