package analysis

import (
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Epsilon is the magnitude below which a net flow counts as zero.
var Epsilon = decimal.New(1, -9)

// AssetFlow is the signed balance change of one asset for one participant.
// Positive means received.
type AssetFlow struct {
	Asset  common.Address
	Symbol string
	Net    decimal.Decimal
}

// NetFlow holds a participant's non-negligible flows in order of the
// asset's first appearance in the transaction.
type NetFlow struct {
	Participant common.Address
	Flows       []AssetFlow
}

func (n NetFlow) Get(asset common.Address) (decimal.Decimal, bool) {
	for _, f := range n.Flows {
		if f.Asset == asset {
			return f.Net, true
		}
	}
	return decimal.Zero, false
}

func (n NetFlow) IsEmpty() bool {
	return len(n.Flows) == 0
}

// ComputeNetFlow sums incoming minus outgoing amounts per asset for
// participant. Assets whose net magnitude is below Epsilon are dropped.
func ComputeNetFlow(events []model.TransferEvent, participant common.Address) NetFlow {
	var order []common.Address
	sums := make(map[common.Address]decimal.Decimal)
	symbols := make(map[common.Address]string)

	for _, ev := range events {
		if ev.From != participant && ev.To != participant {
			continue
		}
		delta := decimal.Zero
		if ev.To == participant {
			delta = delta.Add(ev.Amount)
		}
		if ev.From == participant {
			delta = delta.Sub(ev.Amount)
		}
		if _, seen := sums[ev.Asset]; !seen {
			order = append(order, ev.Asset)
			symbols[ev.Asset] = ev.Symbol
		}
		sums[ev.Asset] = sums[ev.Asset].Add(delta)
	}

	out := NetFlow{Participant: participant}
	for _, asset := range order {
		net := sums[asset]
		if net.Abs().LessThan(Epsilon) {
			continue
		}
		out.Flows = append(out.Flows, AssetFlow{Asset: asset, Symbol: symbols[asset], Net: net})
	}
	return out
}

// Participants lists the addresses to analyze: sender first, then every
// distinct from/to address in log order. The zero address (mint and burn
// counterparty) is never a participant.
func Participants(events []model.TransferEvent, sender common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(events)*2+1)
	var out []common.Address
	add := func(a common.Address) {
		if a == (common.Address{}) {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	add(sender)
	for _, ev := range events {
		add(ev.From)
		add(ev.To)
	}
	return out
}
