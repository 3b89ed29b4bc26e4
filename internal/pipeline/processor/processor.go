package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/alert"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/analysis"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/decoder"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/retry"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/store"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const defaultReceiptTimeout = 5 * time.Second

// Scope selects which addresses of a transaction are analyzed.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeSender Scope = "sender"
)

type LogDecoder interface {
	Decode(logs []chain.Log) decoder.Result
}

type Classifier interface {
	Classify(in analysis.Input) []model.SwapAction
}

type Deduplicator interface {
	Claim(ctx context.Context, key model.AlertKey) bool
}

type Labeler interface {
	Display(addr common.Address) string
}

type Config struct {
	Chain           string
	Native          model.NativeCurrency
	ReceiptTimeout  time.Duration
	ReceiptAttempts int
	Retry           retry.Policy
	Scope           Scope
	// InferNativeReceived credits wrapped-native withdrawals in the
	// transaction to the sender as native currency received.
	InferNativeReceived bool
	ExplorerTxURL       string
}

// Deps are the collaborators of a Processor. History and Labels are
// optional.
type Deps struct {
	Client     chain.Client
	Decoder    LogDecoder
	Classifier Classifier
	Dedup      Deduplicator
	Alerter    alert.Alerter
	Labels     Labeler
	History    store.AlertHistory
}

// Processor turns one transaction into zero or more trade alerts.
type Processor struct {
	cfg    Config
	deps   Deps
	policy retry.Policy
	logger *slog.Logger
	nowFn  func() time.Time
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Processor {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeAll
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "processor", "chain", cfg.Chain)

	policy := cfg.Retry
	policy.MaxAttempts = max(cfg.ReceiptAttempts, 1)
	policy.Logger = logger

	return &Processor{
		cfg:    cfg,
		deps:   deps,
		policy: policy,
		logger: logger,
		nowFn:  time.Now,
	}
}

// Process fetches the receipt of tx, classifies every participant and
// dispatches alerts for actions not seen before. A missing receipt is not
// an error.
func (p *Processor) Process(ctx context.Context, block *chain.Block, tx chain.Transaction) (err error) {
	start := time.Now()
	ctx, span := tracing.Tracer("processor").Start(ctx, "processor.processTx",
		otelTrace.WithAttributes(
			attribute.String("chain", p.cfg.Chain),
			attribute.Int64("block", block.Number),
			attribute.String("tx", tx.Hash.Hex()),
		),
	)
	defer func() {
		tracing.EndSpan(span, err)
		metrics.TxProcessed.WithLabelValues(p.cfg.Chain).Inc()
		metrics.TxDuration.WithLabelValues(p.cfg.Chain).Observe(time.Since(start).Seconds())
	}()

	receipt, err := p.fetchReceipt(ctx, tx.Hash)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			p.logger.Debug("receipt not available, skipping", "tx", tx.Hash.Hex())
			metrics.TxSkipped.WithLabelValues(p.cfg.Chain, "receipt_missing").Inc()
			return nil
		}
		return fmt.Errorf("fetch receipt %s: %w", tx.Hash.Hex(), err)
	}
	if !receipt.Succeeded() {
		metrics.TxSkipped.WithLabelValues(p.cfg.Chain, "reverted").Inc()
		return nil
	}

	decoded := p.deps.Decoder.Decode(receipt.Logs)
	metrics.TransfersDecoded.WithLabelValues(p.cfg.Chain).Add(float64(len(decoded.Transfers)))
	if decoded.Failed > 0 {
		metrics.DecodeFailures.WithLabelValues(p.cfg.Chain).Add(float64(decoded.Failed))
	}
	if len(decoded.Transfers) == 0 {
		metrics.TxSkipped.WithLabelValues(p.cfg.Chain, "no_transfers").Inc()
		return nil
	}

	for _, action := range p.Analyze(tx, decoded) {
		p.dispatch(ctx, block, tx, decoded.Transfers, action)
	}
	return nil
}

// Analyze classifies every participant of tx from its decoded logs.
func (p *Processor) Analyze(tx chain.Transaction, decoded decoder.Result) []model.SwapAction {
	nativeSent := decimal.Zero
	if tx.Value != nil {
		nativeSent = decoder.Scale(tx.Value, p.cfg.Native.Decimals)
	}
	nativeReceived := decimal.Zero
	if p.cfg.InferNativeReceived {
		for _, w := range decoded.Withdrawals {
			nativeReceived = nativeReceived.Add(w.Amount)
		}
	}

	participants := []common.Address{tx.From}
	if p.cfg.Scope == ScopeAll {
		participants = analysis.Participants(decoded.Transfers, tx.From)
	}

	var actions []model.SwapAction
	for _, participant := range participants {
		in := analysis.Input{
			Flow:           analysis.ComputeNetFlow(decoded.Transfers, participant),
			IsSender:       participant == tx.From,
			NativeSent:     decimal.Zero,
			NativeReceived: decimal.Zero,
		}
		if in.IsSender {
			in.NativeSent = nativeSent
			in.NativeReceived = nativeReceived
		}
		for _, action := range p.deps.Classifier.Classify(in) {
			metrics.SwapActions.WithLabelValues(p.cfg.Chain, string(action.Direction), action.Rule).Inc()
			actions = append(actions, action)
		}
	}
	return actions
}

func (p *Processor) fetchReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	var receipt *chain.Receipt
	err := p.policy.Do(ctx, "get_receipt", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.ReceiptTimeout)
		defer cancel()
		var err error
		receipt, err = p.deps.Client.GetTransactionReceipt(callCtx, hash)
		return err
	})
	return receipt, err
}

// dispatch claims the alert key and sends the alert. The claim stands even
// when delivery fails.
func (p *Processor) dispatch(ctx context.Context, block *chain.Block, tx chain.Transaction, transfers []model.TransferEvent, action model.SwapAction) {
	key := model.NewAlertKey(tx.Hash, action)
	if !p.deps.Dedup.Claim(ctx, key) {
		p.logger.Debug("alert already sent", "key", key.String())
		return
	}

	from, to := tradeLeg(transfers, action, tx)
	a := alert.FormatTrade(alert.Trade{
		Chain:         p.cfg.Chain,
		TxHash:        tx.Hash,
		Action:        action,
		From:          p.display(from),
		To:            p.display(to),
		ExplorerTxURL: p.cfg.ExplorerTxURL,
	})

	sendErr := p.deps.Alerter.Send(ctx, a)
	if sendErr != nil {
		p.logger.Warn("alert dispatch failed",
			"tx", tx.Hash.Hex(),
			"action", action.String(),
			"error", sendErr,
		)
	} else {
		p.logger.Info("whale trade alerted",
			"block", block.Number,
			"tx", tx.Hash.Hex(),
			"action", action.String(),
			"participant", action.Participant.Hex(),
			"rule", action.Rule,
		)
	}
	p.record(ctx, block, tx, action, sendErr == nil)
}

func (p *Processor) record(ctx context.Context, block *chain.Block, tx chain.Transaction, action model.SwapAction, delivered bool) {
	if p.deps.History == nil {
		return
	}
	rec := &model.AlertRecord{
		ID:          uuid.New(),
		Chain:       model.Chain(p.cfg.Chain),
		TxHash:      tx.Hash.Hex(),
		BlockNumber: block.Number,
		Direction:   action.Direction,
		TokenSymbol: action.TokenSymbol,
		QuoteSymbol: action.QuoteSymbol,
		AmountToken: action.AmountToken,
		AmountQuote: action.AmountQuote,
		Participant: action.Participant.Hex(),
		Rule:        action.Rule,
		Delivered:   delivered,
		CreatedAt:   p.nowFn().UTC(),
	}
	inserted, err := p.deps.History.Record(ctx, rec)
	switch {
	case err != nil:
		metrics.AlertHistoryWrites.WithLabelValues(p.cfg.Chain, "error").Inc()
		p.logger.Warn("alert history write failed", "tx", rec.TxHash, "error", err)
	case !inserted:
		metrics.AlertHistoryWrites.WithLabelValues(p.cfg.Chain, "duplicate").Inc()
	default:
		metrics.AlertHistoryWrites.WithLabelValues(p.cfg.Chain, "inserted").Inc()
	}
}

func (p *Processor) display(addr common.Address) string {
	if p.deps.Labels == nil {
		return addr.Hex()
	}
	return p.deps.Labels.Display(addr)
}

// tradeLeg picks the sender and receiver shown in an alert: the first
// transfer of the traded token that touches the participant. Without one it
// falls back to the participant and the transaction target.
func tradeLeg(transfers []model.TransferEvent, action model.SwapAction, tx chain.Transaction) (common.Address, common.Address) {
	for _, ev := range transfers {
		if ev.Asset != action.TokenAddress {
			continue
		}
		if ev.From == action.Participant || ev.To == action.Participant {
			return ev.From, ev.To
		}
	}
	to := common.Address{}
	if tx.To != nil {
		to = *tx.To
	}
	return action.Participant, to
}
