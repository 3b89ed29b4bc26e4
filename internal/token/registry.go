package token

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Registry resolves token metadata by contract address and knows which
// assets act as quote currencies. It is read-only after construction.
type Registry struct {
	byAddress map[common.Address]model.Token
	quotes    []common.Address
	native    model.NativeCurrency
}

type entry struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// LoadFile reads a token list (a JSON or YAML array of
// {address, symbol, decimals}) from path.
func LoadFile(path string, quoteSymbols []string, native model.NativeCurrency, wrappedSymbol string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token list %s: %w", path, err)
	}
	tokens, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("token list %s: %w", path, err)
	}
	return New(tokens, quoteSymbols, native, wrappedSymbol)
}

func Parse(raw []byte) ([]model.Token, error) {
	var entries []entry
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	tokens := make([]model.Token, 0, len(entries))
	for i, e := range entries {
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("entry %d: invalid address %q", i, e.Address)
		}
		if strings.TrimSpace(e.Symbol) == "" {
			return nil, fmt.Errorf("entry %d: empty symbol", i)
		}
		if e.Decimals < 0 || e.Decimals > 77 {
			return nil, fmt.Errorf("entry %d: decimals %d out of range", i, e.Decimals)
		}
		tokens = append(tokens, model.Token{
			Address:  common.HexToAddress(e.Address),
			Symbol:   strings.TrimSpace(e.Symbol),
			Decimals: e.Decimals,
		})
	}
	return tokens, nil
}

// New builds a registry. Quote membership is matched on upper-cased symbol.
// When native.Wrapped is unset it is resolved from wrappedSymbol.
func New(tokens []model.Token, quoteSymbols []string, native model.NativeCurrency, wrappedSymbol string) (*Registry, error) {
	quoteSet := make(map[string]struct{}, len(quoteSymbols))
	for _, s := range quoteSymbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			quoteSet[s] = struct{}{}
		}
	}

	r := &Registry{
		byAddress: make(map[common.Address]model.Token, len(tokens)),
		native:    native,
	}
	for _, t := range tokens {
		if _, dup := r.byAddress[t.Address]; dup {
			return nil, fmt.Errorf("duplicate token address %s", t.Address.Hex())
		}
		_, t.IsQuote = quoteSet[strings.ToUpper(t.Symbol)]
		r.byAddress[t.Address] = t
		if t.IsQuote {
			r.quotes = append(r.quotes, t.Address)
		}
		if r.native.Wrapped == (common.Address{}) && wrappedSymbol != "" && strings.EqualFold(t.Symbol, wrappedSymbol) {
			r.native.Wrapped = t.Address
		}
	}
	sort.Slice(r.quotes, func(i, j int) bool {
		return bytes.Compare(r.quotes[i].Bytes(), r.quotes[j].Bytes()) < 0
	})
	return r, nil
}

func (r *Registry) Lookup(addr common.Address) (model.Token, bool) {
	t, ok := r.byAddress[addr]
	return t, ok
}

func (r *Registry) IsQuote(addr common.Address) bool {
	return r.byAddress[addr].IsQuote
}

// QuoteAddresses returns the quote set in ascending address order.
func (r *Registry) QuoteAddresses() []common.Address {
	out := make([]common.Address, len(r.quotes))
	copy(out, r.quotes)
	return out
}

func (r *Registry) Native() model.NativeCurrency {
	return r.native
}

func (r *Registry) Len() int {
	return len(r.byAddress)
}
