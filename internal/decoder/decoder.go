package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const eventsABI = `[
 {"anonymous":false,"type":"event","name":"Transfer","inputs":[
  {"indexed":true,"name":"from","type":"address"},
  {"indexed":true,"name":"to","type":"address"},
  {"indexed":false,"name":"value","type":"uint256"}]},
 {"anonymous":false,"type":"event","name":"Withdrawal","inputs":[
  {"indexed":true,"name":"src","type":"address"},
  {"indexed":false,"name":"wad","type":"uint256"}]}
]`

var (
	TransferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	WithdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))

	parsedABI = mustParseABI(eventsABI)
)

var errUnexpectedShape = errors.New("unexpected log shape")

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse events abi: %v", err))
	}
	return parsed
}

type TokenLookup interface {
	Lookup(addr common.Address) (model.Token, bool)
	Native() model.NativeCurrency
}

// Result holds everything decoded from one receipt.
type Result struct {
	Transfers   []model.TransferEvent
	Withdrawals []model.NativeWithdrawal
	// UnknownAsset counts Transfer logs emitted by contracts outside the registry.
	UnknownAsset int
	Failed       int
}

type Decoder struct {
	tokens TokenLookup
	logger *slog.Logger
}

func New(tokens TokenLookup, logger *slog.Logger) *Decoder {
	return &Decoder{tokens: tokens, logger: logger.With("component", "decoder")}
}

// Decode extracts Transfer events of registered tokens and wrapped-native
// withdrawals from logs. Malformed logs are counted and skipped.
func (d *Decoder) Decode(logs []chain.Log) Result {
	var res Result
	wrapped := d.tokens.Native().Wrapped

	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case TransferTopic:
			tok, known := d.tokens.Lookup(lg.Address)
			if !known {
				res.UnknownAsset++
				continue
			}
			ev, err := decodeTransfer(lg, tok)
			if err != nil {
				res.Failed++
				d.logger.Debug("skip undecodable transfer log", "asset", lg.Address.Hex(), "log_index", lg.Index, "error", err)
				continue
			}
			res.Transfers = append(res.Transfers, ev)
		case WithdrawalTopic:
			if wrapped == (common.Address{}) || lg.Address != wrapped {
				continue
			}
			w, err := decodeWithdrawal(lg, d.tokens.Native().Decimals)
			if err != nil {
				res.Failed++
				d.logger.Debug("skip undecodable withdrawal log", "log_index", lg.Index, "error", err)
				continue
			}
			res.Withdrawals = append(res.Withdrawals, w)
		}
	}
	return res
}

func decodeTransfer(lg chain.Log, tok model.Token) (model.TransferEvent, error) {
	ev := parsedABI.Events["Transfer"]
	fields, value, err := unpack(ev, lg)
	if err != nil {
		return model.TransferEvent{}, err
	}
	from, okFrom := fields["from"].(common.Address)
	to, okTo := fields["to"].(common.Address)
	if !okFrom || !okTo {
		return model.TransferEvent{}, errUnexpectedShape
	}
	return model.TransferEvent{
		Asset:    lg.Address,
		Symbol:   tok.Symbol,
		From:     from,
		To:       to,
		Amount:   Scale(value, tok.Decimals),
		LogIndex: lg.Index,
	}, nil
}

func decodeWithdrawal(lg chain.Log, decimals int) (model.NativeWithdrawal, error) {
	ev := parsedABI.Events["Withdrawal"]
	fields, value, err := unpack(ev, lg)
	if err != nil {
		return model.NativeWithdrawal{}, err
	}
	src, ok := fields["src"].(common.Address)
	if !ok {
		return model.NativeWithdrawal{}, errUnexpectedShape
	}
	return model.NativeWithdrawal{Src: src, Amount: Scale(value, decimals), LogIndex: lg.Index}, nil
}

// unpack decodes the indexed topics into a map and returns the single
// non-indexed uint256 value.
func unpack(ev abi.Event, lg chain.Log) (map[string]interface{}, *big.Int, error) {
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(lg.Topics) != len(indexed)+1 {
		return nil, nil, fmt.Errorf("%w: %d topics for %s", errUnexpectedShape, len(lg.Topics), ev.Name)
	}

	fields := make(map[string]interface{}, len(indexed))
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, nil, fmt.Errorf("parse topics: %w", err)
	}
	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != 1 {
		return nil, nil, errUnexpectedShape
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, nil, errUnexpectedShape
	}
	return fields, value, nil
}

// Scale converts a raw integer amount into token units.
func Scale(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
