package alert

import (
	"fmt"
	"html"
	"strings"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Trade carries everything needed to render one trade alert. From and To
// are already resolved to display names.
type Trade struct {
	Chain         string
	TxHash        common.Hash
	Action        model.SwapAction
	From          string
	To            string
	ExplorerTxURL string
}

// FormatTrade renders a trade as an Alert with both a plain and an HTML body.
func FormatTrade(t Trade) Alert {
	a := t.Action
	alertType := AlertTypeWhaleBuy
	emoji := "🟢"
	if a.Direction == model.DirectionSell {
		alertType = AlertTypeWhaleSell
		emoji = "🔴"
	}
	amount := FormatAmount(a.AmountToken)
	value := FormatAmount(a.AmountQuote)
	link := t.ExplorerTxURL + t.TxHash.Hex()

	var b strings.Builder
	b.WriteString("🚨 <b>BIG TRADE ALERT</b> 🐳\n\n")
	fmt.Fprintf(&b, "🛒 <b>Action:</b> %s %s\n", a.Direction, emoji)
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s %s\n", amount, html.EscapeString(a.TokenSymbol))
	fmt.Fprintf(&b, "💱 <b>Value:</b> %s %s\n\n", value, html.EscapeString(a.QuoteSymbol))
	fmt.Fprintf(&b, "👤 <b>From:</b> <code>%s</code>\n", html.EscapeString(t.From))
	fmt.Fprintf(&b, "🏦 <b>To:</b> <code>%s</code>\n\n", html.EscapeString(t.To))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">View TX</a>\n", html.EscapeString(link))
	b.WriteString("━━━━━━━━━━━━━━━━━━")

	return Alert{
		Type:    alertType,
		Chain:   t.Chain,
		Title:   fmt.Sprintf("%s %s %s", a.Direction, amount, a.TokenSymbol),
		Message: fmt.Sprintf("%s %s %s for %s %s", a.Direction, amount, a.TokenSymbol, value, a.QuoteSymbol),
		HTML:    b.String(),
		Fields: map[string]string{
			"from": t.From,
			"to":   t.To,
			"tx":   link,
			"rule": a.Rule,
		},
	}
}

// FormatAmount renders d with thousands separators and at most three
// fractional digits, e.g. 1234567.891 => "1,234,567.891".
func FormatAmount(d decimal.Decimal) string {
	s := d.Round(3).String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
