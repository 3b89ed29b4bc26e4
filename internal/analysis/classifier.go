package analysis

import (
	"bytes"
	"strings"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type QuoteSet interface {
	IsQuote(addr common.Address) bool
}

// Thresholds maps a settlement-side symbol to the minimum amount that makes
// a trade alert-worthy.
type Thresholds struct {
	Default   decimal.Decimal
	PerSymbol map[string]decimal.Decimal
}

func (t Thresholds) For(symbol string) decimal.Decimal {
	if v, ok := t.PerSymbol[strings.ToUpper(symbol)]; ok {
		return v
	}
	return t.Default
}

// Input is everything the rules see about one participant of one
// transaction.
type Input struct {
	Flow     NetFlow
	IsSender bool
	// NativeSent is the transaction value; only meaningful for the sender.
	NativeSent decimal.Decimal
	// NativeReceived is native currency paid out to the sender during the
	// transaction, when it can be determined.
	NativeReceived decimal.Decimal
}

type Env struct {
	Quotes       QuoteSet
	NativeSymbol string
	Thresholds   Thresholds
}

// Rule inspects one participant's flows and returns any trades it
// recognizes. Rules are independent of each other.
type Rule struct {
	Name  string
	Match func(env Env, in Input) []model.SwapAction
}

type Classifier struct {
	env   Env
	rules []Rule
}

// NewClassifier evaluates rules in the given order, or DefaultRules when
// none are passed.
func NewClassifier(env Env, rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{env: env, rules: rules}
}

// Classify runs every rule against in and concatenates their matches in
// rule order.
func (c *Classifier) Classify(in Input) []model.SwapAction {
	if in.Flow.IsEmpty() {
		return nil
	}
	var out []model.SwapAction
	for _, rule := range c.rules {
		for _, action := range rule.Match(c.env, in) {
			action.Rule = rule.Name
			action.Participant = in.Flow.Participant
			out = append(out, action)
		}
	}
	return out
}

func DefaultRules() []Rule {
	return []Rule{
		{Name: "native_sell", Match: matchNativeSell},
		{Name: "native_buy", Match: matchNativeBuy},
		{Name: "quote_sell", Match: matchQuoteSell},
		{Name: "quote_buy", Match: matchQuoteBuy},
		{Name: "quote_swap", Match: matchQuoteSwap},
	}
}

func matchNativeSell(env Env, in Input) []model.SwapAction {
	if !in.IsSender || !meets(in.NativeReceived, env.Thresholds.For(env.NativeSymbol)) {
		return nil
	}
	var out []model.SwapAction
	for _, f := range tokens(env, in.Flow) {
		if f.Net.IsNegative() {
			out = append(out, model.SwapAction{
				Direction:    model.DirectionSell,
				TokenSymbol:  f.Symbol,
				QuoteSymbol:  env.NativeSymbol,
				AmountToken:  f.Net.Abs(),
				AmountQuote:  in.NativeReceived,
				TokenAddress: f.Asset,
			})
		}
	}
	return out
}

func matchNativeBuy(env Env, in Input) []model.SwapAction {
	if !in.IsSender || !meets(in.NativeSent, env.Thresholds.For(env.NativeSymbol)) {
		return nil
	}
	var out []model.SwapAction
	for _, f := range tokens(env, in.Flow) {
		if f.Net.IsPositive() {
			out = append(out, model.SwapAction{
				Direction:    model.DirectionBuy,
				TokenSymbol:  f.Symbol,
				QuoteSymbol:  env.NativeSymbol,
				AmountToken:  f.Net,
				AmountQuote:  in.NativeSent,
				TokenAddress: f.Asset,
			})
		}
	}
	return out
}

func matchQuoteSell(env Env, in Input) []model.SwapAction {
	var out []model.SwapAction
	for _, f := range tokens(env, in.Flow) {
		if !f.Net.IsNegative() {
			continue
		}
		q, ok := largestQuote(env, in.Flow, true)
		if !ok {
			continue
		}
		out = append(out, model.SwapAction{
			Direction:    model.DirectionSell,
			TokenSymbol:  f.Symbol,
			QuoteSymbol:  q.Symbol,
			AmountToken:  f.Net.Abs(),
			AmountQuote:  q.Net,
			TokenAddress: f.Asset,
			QuoteAddress: q.Asset,
		})
	}
	return out
}

func matchQuoteBuy(env Env, in Input) []model.SwapAction {
	var out []model.SwapAction
	for _, f := range tokens(env, in.Flow) {
		if !f.Net.IsPositive() {
			continue
		}
		q, ok := largestQuote(env, in.Flow, false)
		if !ok {
			continue
		}
		out = append(out, model.SwapAction{
			Direction:    model.DirectionBuy,
			TokenSymbol:  f.Symbol,
			QuoteSymbol:  q.Symbol,
			AmountToken:  f.Net,
			AmountQuote:  q.Net.Abs(),
			TokenAddress: f.Asset,
			QuoteAddress: q.Asset,
		})
	}
	return out
}

// matchQuoteSwap reports a quote-for-quote trade as a BUY of the received
// quote paid with the other one.
func matchQuoteSwap(env Env, in Input) []model.SwapAction {
	received, ok := largestQuote(env, in.Flow, true)
	if !ok {
		return nil
	}
	paid, ok := largestOf(quotes(env, in.Flow), false, nil)
	if !ok {
		return nil
	}
	return []model.SwapAction{{
		Direction:    model.DirectionBuy,
		TokenSymbol:  received.Symbol,
		QuoteSymbol:  paid.Symbol,
		AmountToken:  received.Net,
		AmountQuote:  paid.Net.Abs(),
		TokenAddress: received.Asset,
		QuoteAddress: paid.Asset,
	}}
}

// largestQuote picks, among quote flows of the requested sign whose
// magnitude meets that quote's threshold, the one with the largest
// magnitude. Equal magnitudes resolve to the lower asset address.
func largestQuote(env Env, flow NetFlow, positive bool) (AssetFlow, bool) {
	return largestOf(quotes(env, flow), positive, func(f AssetFlow) bool {
		return meets(f.Net.Abs(), env.Thresholds.For(f.Symbol))
	})
}

func largestOf(flows []AssetFlow, positive bool, keep func(AssetFlow) bool) (AssetFlow, bool) {
	var best AssetFlow
	found := false
	for _, f := range flows {
		if f.Net.IsPositive() != positive {
			continue
		}
		if keep != nil && !keep(f) {
			continue
		}
		if !found {
			best, found = f, true
			continue
		}
		switch f.Net.Abs().Cmp(best.Net.Abs()) {
		case 1:
			best = f
		case 0:
			if bytes.Compare(f.Asset.Bytes(), best.Asset.Bytes()) < 0 {
				best = f
			}
		}
	}
	return best, found
}

func tokens(env Env, flow NetFlow) []AssetFlow {
	var out []AssetFlow
	for _, f := range flow.Flows {
		if !env.Quotes.IsQuote(f.Asset) {
			out = append(out, f)
		}
	}
	return out
}

func quotes(env Env, flow NetFlow) []AssetFlow {
	var out []AssetFlow
	for _, f := range flow.Flows {
		if env.Quotes.IsQuote(f.Asset) {
			out = append(out, f)
		}
	}
	return out
}

func meets(amount, threshold decimal.Decimal) bool {
	return amount.IsPositive() && amount.GreaterThanOrEqual(threshold)
}
