// Package main inspects a single transaction the way the live monitor would:
// it decodes the receipt's logs against the token registry and runs the swap
// rules with a very low threshold, printing everything it finds. Nothing is
// dispatched or recorded.
//
// Usage:
//
//	go run ./cmd/debugtx -tx 0xd6a5...e78b [-threshold 0.0001] [-output json]
//
// Chain, RPC and token list settings come from the same environment as the
// monitor (RPC_URL, TOKEN_LIST_PATH, QUOTE_SYMBOLS, ...).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/analysis"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm/rpc"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/config"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/decoder"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/processor"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const (
	exitOK      = 0
	exitNoTrade = 1
	exitFatal   = 2

	fetchTimeout = 15 * time.Second
)

type txSource interface {
	GetTransaction(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
}

type tokenLookup interface {
	Lookup(addr common.Address) (model.Token, bool)
}

type analyzer interface {
	Analyze(tx chain.Transaction, decoded decoder.Result) []model.SwapAction
}

type logLine struct {
	Index  uint   `json:"index"`
	Asset  string `json:"asset"`
	Symbol string `json:"symbol,omitempty"`
	Topic0 string `json:"topic0,omitempty"`
	Kind   string `json:"kind"`
}

type report struct {
	TxHash       string                   `json:"tx_hash"`
	Block        int64                    `json:"block"`
	From         string                   `json:"from"`
	To           string                   `json:"to,omitempty"`
	Value        string                   `json:"value"`
	Succeeded    bool                     `json:"succeeded"`
	Logs         []logLine                `json:"logs"`
	Transfers    []model.TransferEvent    `json:"transfers"`
	Withdrawals  []model.NativeWithdrawal `json:"withdrawals"`
	UnknownAsset int                      `json:"unknown_asset_logs"`
	Failed       int                      `json:"undecodable_logs"`
	Actions      []model.SwapAction       `json:"actions"`
}

func main() {
	var (
		txFlag        = flag.String("tx", "", "Transaction hash to inspect")
		thresholdFlag = flag.String("threshold", "0.0001", "Threshold applied to every quote and the native currency")
		outputFlag    = flag.String("output", "text", "Output format (text / json)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *txFlag == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -tx")
		flag.Usage()
		os.Exit(exitFatal)
	}
	raw, err := hexutil.Decode(*txFlag)
	if err != nil || len(raw) != common.HashLength {
		fmt.Fprintf(os.Stderr, "invalid -tx %q: expected a 32-byte hex hash\n", *txFlag)
		os.Exit(exitFatal)
	}
	threshold, err := decimal.NewFromString(*thresholdFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -threshold: %v\n", err)
		os.Exit(exitFatal)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(exitFatal)
	}

	native := model.NativeCurrency{Symbol: cfg.Chain.NativeSymbol, Decimals: cfg.Chain.NativeDecimals}
	registry, err := token.LoadFile(cfg.Tokens.ListPath, cfg.Tokens.QuoteSymbols, native, cfg.Chain.WrappedNativeSymbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token registry: %v\n", err)
		os.Exit(exitFatal)
	}

	adapter := evm.NewAdapter(rpc.NewClient(cfg.Chain.RPCURL, logger), evm.Config{Chain: cfg.Chain.Name}, logger)
	proc := processor.New(processor.Config{
		Chain:               cfg.Chain.Name,
		Native:              registry.Native(),
		Scope:               processor.Scope(cfg.Tokens.Scope),
		InferNativeReceived: cfg.Tokens.InferNativeReceive,
	}, processor.Deps{
		Classifier: analysis.NewClassifier(analysis.Env{
			Quotes:       registry,
			NativeSymbol: registry.Native().Symbol,
			Thresholds:   analysis.Thresholds{Default: threshold},
		}),
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	rep, err := inspect(ctx, adapter, registry, decoder.New(registry, logger), proc, common.BytesToHash(raw), registry.Native().Decimals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect %s: %v\n", *txFlag, err)
		os.Exit(exitFatal)
	}

	switch *outputFlag {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	default:
		err = printText(os.Stdout, rep)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		os.Exit(exitFatal)
	}
	if len(rep.Actions) == 0 {
		os.Exit(exitNoTrade)
	}
	os.Exit(exitOK)
}

func inspect(
	ctx context.Context,
	src txSource,
	tokens tokenLookup,
	dec processor.LogDecoder,
	an analyzer,
	hash common.Hash,
	nativeDecimals int,
) (*report, error) {
	tx, err := src.GetTransaction(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	receipt, err := src.GetTransactionReceipt(ctx, hash)
	if errors.Is(err, chain.ErrNotFound) {
		return nil, fmt.Errorf("receipt not found, transaction may be pending")
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	rep := &report{
		TxHash:    hash.Hex(),
		Block:     receipt.BlockNumber,
		From:      tx.From.Hex(),
		Value:     "0",
		Succeeded: receipt.Succeeded(),
	}
	if tx.To != nil {
		rep.To = tx.To.Hex()
	}
	if tx.Value != nil {
		rep.Value = decoder.Scale(tx.Value, nativeDecimals).String()
	}

	for _, lg := range receipt.Logs {
		line := logLine{Index: lg.Index, Asset: lg.Address.Hex(), Kind: "other"}
		if tok, ok := tokens.Lookup(lg.Address); ok {
			line.Symbol = tok.Symbol
		}
		if len(lg.Topics) > 0 {
			line.Topic0 = lg.Topics[0].Hex()
			switch lg.Topics[0] {
			case decoder.TransferTopic:
				line.Kind = "transfer"
			case decoder.WithdrawalTopic:
				line.Kind = "withdrawal"
			}
		}
		rep.Logs = append(rep.Logs, line)
	}

	decoded := dec.Decode(receipt.Logs)
	rep.Transfers = decoded.Transfers
	rep.Withdrawals = decoded.Withdrawals
	rep.UnknownAsset = decoded.UnknownAsset
	rep.Failed = decoded.Failed
	rep.Actions = an.Analyze(*tx, decoded)
	return rep, nil
}

func printText(w io.Writer, rep *report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "tx:      %s\n", rep.TxHash)
	fmt.Fprintf(&b, "block:   %d\n", rep.Block)
	fmt.Fprintf(&b, "from:    %s\n", rep.From)
	if rep.To != "" {
		fmt.Fprintf(&b, "to:      %s\n", rep.To)
	}
	fmt.Fprintf(&b, "value:   %s\n", rep.Value)
	fmt.Fprintf(&b, "status:  %s\n", statusText(rep.Succeeded))

	fmt.Fprintf(&b, "\nlogs (%d):\n", len(rep.Logs))
	for _, l := range rep.Logs {
		symbol := l.Symbol
		if symbol == "" {
			symbol = "UNKNOWN"
		}
		fmt.Fprintf(&b, "  #%d %s (%s) %s\n", l.Index, l.Asset, symbol, l.Kind)
	}

	fmt.Fprintf(&b, "\ntransfers (%d):\n", len(rep.Transfers))
	for _, t := range rep.Transfers {
		fmt.Fprintf(&b, "  #%d %s %s  %s -> %s\n", t.LogIndex, t.Amount.String(), t.Symbol, t.From.Hex(), t.To.Hex())
	}
	if len(rep.Withdrawals) > 0 {
		fmt.Fprintf(&b, "\nwithdrawals (%d):\n", len(rep.Withdrawals))
		for _, wd := range rep.Withdrawals {
			fmt.Fprintf(&b, "  #%d %s by %s\n", wd.LogIndex, wd.Amount.String(), wd.Src.Hex())
		}
	}
	if rep.UnknownAsset > 0 || rep.Failed > 0 {
		fmt.Fprintf(&b, "\nskipped: %d unknown-asset, %d undecodable\n", rep.UnknownAsset, rep.Failed)
	}

	fmt.Fprintf(&b, "\nactions (%d):\n", len(rep.Actions))
	if len(rep.Actions) == 0 {
		b.WriteString("  none detected\n")
	}
	for _, a := range rep.Actions {
		fmt.Fprintf(&b, "  %s %s %s for %s %s  participant=%s rule=%s\n",
			a.Direction, a.AmountToken.String(), a.TokenSymbol, a.AmountQuote.String(), a.QuoteSymbol,
			a.Participant.Hex(), a.Rule)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusText(ok bool) string {
	if ok {
		return "success"
	}
	return "reverted"
}
