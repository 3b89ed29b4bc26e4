package analysis

import (
	"testing"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteSet map[common.Address]bool

func (q quoteSet) IsQuote(addr common.Address) bool { return q[addr] }

func newTestClassifier(threshold string, overrides map[string]decimal.Decimal) *Classifier {
	return NewClassifier(Env{
		Quotes:       quoteSet{quoteY: true, q1: true, q2: true},
		NativeSymbol: "VIC",
		Thresholds:   Thresholds{Default: dec(threshold), PerSymbol: overrides},
	})
}

func flowOf(participant common.Address, flows ...AssetFlow) NetFlow {
	return NetFlow{Participant: participant, Flows: flows}
}

func af(asset common.Address, symbol, net string) AssetFlow {
	return AssetFlow{Asset: asset, Symbol: symbol, Net: dec(net)}
}

func requireAction(t *testing.T, got model.SwapAction, dir model.Direction, token, quote, amountToken, amountQuote string) {
	t.Helper()
	assert.Equal(t, dir, got.Direction)
	assert.Equal(t, token, got.TokenSymbol)
	assert.Equal(t, quote, got.QuoteSymbol)
	assert.True(t, dec(amountToken).Equal(got.AmountToken), "amountToken=%s", got.AmountToken)
	assert.True(t, dec(amountQuote).Equal(got.AmountQuote), "amountQuote=%s", got.AmountQuote)
}

func TestClassify_ScenarioA_TokenSellForQuote(t *testing.T) {
	c := newTestClassifier("1000", nil)
	events := []model.TransferEvent{
		transfer(tokenX, "TokenX", sender, pool, "50000"),
		transfer(quoteY, "QuoteY", pool, sender, "1200"),
	}

	actions := c.Classify(Input{Flow: ComputeNetFlow(events, sender), IsSender: true})

	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionSell, "TokenX", "QuoteY", "50000", "1200")
	assert.Equal(t, "quote_sell", actions[0].Rule)
	assert.Equal(t, sender, actions[0].Participant)
	assert.Equal(t, tokenX, actions[0].TokenAddress)
	assert.Equal(t, quoteY, actions[0].QuoteAddress)
}

func TestClassify_ScenarioB_NativeBuy(t *testing.T) {
	c := newTestClassifier("10000", map[string]decimal.Decimal{"VIC": dec("1")})
	events := []model.TransferEvent{transfer(tokenZ, "TokenZ", pool, sender, "800")}

	actions := c.Classify(Input{
		Flow:       ComputeNetFlow(events, sender),
		IsSender:   true,
		NativeSent: dec("2"),
	})

	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionBuy, "TokenZ", "VIC", "800", "2")
	assert.Equal(t, "native_buy", actions[0].Rule)
	assert.Equal(t, common.Address{}, actions[0].QuoteAddress)
}

func TestClassify_ScenarioC_NetZeroNoAction(t *testing.T) {
	c := newTestClassifier("1", nil)
	events := []model.TransferEvent{
		transfer(tokenX, "TokenX", sender, pool, "100"),
		transfer(tokenX, "TokenX", pool, sender, "100"),
	}

	assert.Empty(t, c.Classify(Input{Flow: ComputeNetFlow(events, sender), IsSender: true}))
}

func TestClassify_ScenarioD_QuoteToQuote(t *testing.T) {
	c := newTestClassifier("100", nil)
	events := []model.TransferEvent{
		transfer(q1, "Q1", sender, pool, "500"),
		transfer(q2, "Q2", pool, sender, "600"),
	}

	actions := c.Classify(Input{Flow: ComputeNetFlow(events, sender), IsSender: true})

	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionBuy, "Q2", "Q1", "600", "500")
	assert.Equal(t, "quote_swap", actions[0].Rule)
}

func TestClassify_QuoteBuy(t *testing.T) {
	c := newTestClassifier("1000", nil)
	flow := flowOf(sender, af(quoteY, "QuoteY", "-1500"), af(tokenX, "TokenX", "42"))

	actions := c.Classify(Input{Flow: flow})

	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionBuy, "TokenX", "QuoteY", "42", "1500")
	assert.Equal(t, "quote_buy", actions[0].Rule)
}

func TestClassify_ThresholdOnQuoteSide(t *testing.T) {
	c := newTestClassifier("1000", nil)

	below := flowOf(sender, af(tokenX, "TokenX", "-1000000"), af(quoteY, "QuoteY", "999.99"))
	assert.Empty(t, c.Classify(Input{Flow: below}), "large token amount does not count")

	exact := flowOf(sender, af(tokenX, "TokenX", "-1"), af(quoteY, "QuoteY", "1000"))
	assert.Len(t, c.Classify(Input{Flow: exact}), 1, "threshold is inclusive")
}

func TestClassify_PerSymbolThreshold(t *testing.T) {
	c := newTestClassifier("1000", map[string]decimal.Decimal{"QUOTEY": dec("10")})
	flow := flowOf(sender, af(tokenX, "TokenX", "-5"), af(quoteY, "QuoteY", "11"))

	actions := c.Classify(Input{Flow: flow})
	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionSell, "TokenX", "QuoteY", "5", "11")
}

func TestClassify_NativeRulesSenderOnly(t *testing.T) {
	c := newTestClassifier("1", nil)
	flow := flowOf(pool, af(tokenZ, "TokenZ", "800"))

	assert.Empty(t, c.Classify(Input{Flow: flow, IsSender: false, NativeSent: dec("5")}))
}

func TestClassify_NativeSell(t *testing.T) {
	c := newTestClassifier("3", nil)
	flow := flowOf(sender, af(tokenX, "TokenX", "-70"))

	actions := c.Classify(Input{Flow: flow, IsSender: true, NativeReceived: dec("3.5")})

	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionSell, "TokenX", "VIC", "70", "3.5")
	assert.Equal(t, "native_sell", actions[0].Rule)

	assert.Empty(t, c.Classify(Input{Flow: flow, IsSender: true, NativeReceived: dec("2.9")}))
}

func TestClassify_ZeroNativeNeverMatchesZeroThreshold(t *testing.T) {
	c := newTestClassifier("0", nil)
	flow := flowOf(sender, af(tokenX, "TokenX", "10"))

	assert.Empty(t, c.Classify(Input{Flow: flow, IsSender: true}))
}

func TestClassify_TieBreakLargestQuote(t *testing.T) {
	c := newTestClassifier("100", nil)
	flow := flowOf(sender,
		af(tokenX, "TokenX", "-10"),
		af(q1, "Q1", "150"),
		af(quoteY, "QuoteY", "400"),
		af(q2, "Q2", "250"),
	)

	actions := c.Classify(Input{Flow: flow})
	require.Len(t, actions, 1)
	requireAction(t, actions[0], model.DirectionSell, "TokenX", "QuoteY", "10", "400")
}

func TestClassify_TieBreakEqualMagnitudeUsesLowerAddress(t *testing.T) {
	c := newTestClassifier("100", nil)
	forward := flowOf(sender, af(tokenX, "TokenX", "-10"), af(q2, "Q2", "300"), af(q1, "Q1", "300"))
	backward := flowOf(sender, af(tokenX, "TokenX", "-10"), af(q1, "Q1", "300"), af(q2, "Q2", "300"))

	a := c.Classify(Input{Flow: forward})
	b := c.Classify(Input{Flow: backward})
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "Q1", a[0].QuoteSymbol)
	assert.Equal(t, a[0].QuoteSymbol, b[0].QuoteSymbol, "independent of flow order")
}

func TestClassify_MultipleTokensAndRules(t *testing.T) {
	c := newTestClassifier("100", nil)
	flow := flowOf(sender,
		af(tokenX, "TokenX", "-10"),
		af(tokenZ, "TokenZ", "-20"),
		af(quoteY, "QuoteY", "500"),
	)

	actions := c.Classify(Input{Flow: flow, IsSender: true, NativeReceived: dec("200")})

	require.Len(t, actions, 4)
	assert.Equal(t, "native_sell", actions[0].Rule)
	assert.Equal(t, "TokenX", actions[0].TokenSymbol)
	assert.Equal(t, "native_sell", actions[1].Rule)
	assert.Equal(t, "TokenZ", actions[1].TokenSymbol)
	assert.Equal(t, "quote_sell", actions[2].Rule)
	assert.Equal(t, "quote_sell", actions[3].Rule)
}

func TestClassify_CustomRuleOrder(t *testing.T) {
	only := Rule{Name: "always", Match: func(env Env, in Input) []model.SwapAction {
		return []model.SwapAction{{Direction: model.DirectionBuy, TokenSymbol: "ANY"}}
	}}
	c := NewClassifier(Env{Quotes: quoteSet{}}, only)

	actions := c.Classify(Input{Flow: flowOf(pool, af(tokenX, "TokenX", "1"))})
	require.Len(t, actions, 1)
	assert.Equal(t, "always", actions[0].Rule)
	assert.Equal(t, pool, actions[0].Participant)
}

func TestClassify_EmptyFlow(t *testing.T) {
	c := newTestClassifier("1", nil)
	assert.Nil(t, c.Classify(Input{Flow: flowOf(sender), IsSender: true, NativeSent: dec("100")}))
}

func TestThresholds_For(t *testing.T) {
	th := Thresholds{Default: dec("10000"), PerSymbol: map[string]decimal.Decimal{"VIC": dec("5000")}}
	assert.True(t, dec("5000").Equal(th.For("vic")))
	assert.True(t, dec("10000").Equal(th.For("C98")))
}
