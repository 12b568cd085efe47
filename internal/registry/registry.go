// Package registry holds the read-only coin and token metadata the
// gateway serves. Both files are embedded at build time and loaded once;
// lookups after that are lock-free.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed registry.json
var registryJSON []byte

//go:embed tokens.json
var tokensJSON []byte

// CoinMeta describes one supported chain. Decimals drives all amount
// rendering; ChainId is only set for EVM chains (Etherscan V2 needs it).
type CoinMeta struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Decimals   int    `json:"decimals"`
	Curve      string `json:"curve"`
	Blockchain string `json:"blockchain"`
	ChainID    int64  `json:"chainId,omitempty"`
	CgID       string `json:"cgId,omitempty"`
}

// TokenMeta describes one whitelisted contract token.
type TokenMeta struct {
	Coin     string `json:"coin"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Contract string `json:"contract"`
	Decimals int    `json:"decimals"`
	CgID     string `json:"cgId,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

type Registry struct {
	coins      []CoinMeta
	tokens     []TokenMeta
	byID       map[string]CoinMeta
	byContract map[string]TokenMeta // key: lowercased contract
	cgBySymbol map[string]string    // uppercased symbol -> CoinGecko id
}

// Load parses the embedded descriptor files. A parse failure here is a
// build defect, so callers treat the error as fatal at startup.
func Load() (*Registry, error) {
	r := &Registry{
		byID:       make(map[string]CoinMeta),
		byContract: make(map[string]TokenMeta),
		cgBySymbol: make(map[string]string),
	}
	if err := json.Unmarshal(registryJSON, &r.coins); err != nil {
		return nil, fmt.Errorf("registry.json: %w", err)
	}
	if err := json.Unmarshal(tokensJSON, &r.tokens); err != nil {
		return nil, fmt.Errorf("tokens.json: %w", err)
	}
	for _, c := range r.coins {
		r.byID[c.ID] = c
		if c.CgID != "" {
			sym := strings.ToUpper(c.Symbol)
			if _, dup := r.cgBySymbol[sym]; !dup {
				r.cgBySymbol[sym] = c.CgID
			}
		}
	}
	for _, t := range r.tokens {
		r.byContract[strings.ToLower(t.Contract)] = t
		if t.CgID != "" {
			sym := strings.ToUpper(t.Symbol)
			if _, dup := r.cgBySymbol[sym]; !dup {
				r.cgBySymbol[sym] = t.CgID
			}
		}
	}
	return r, nil
}

// CoinByID returns the coin descriptor for a chain key. Missing keys
// return ok=false, never an error.
func (r *Registry) CoinByID(id string) (CoinMeta, bool) {
	c, ok := r.byID[strings.ToLower(id)]
	return c, ok
}

// TokenByContract looks up a whitelisted token by contract address,
// case-insensitively.
func (r *Registry) TokenByContract(contract string) (TokenMeta, bool) {
	t, ok := r.byContract[strings.ToLower(contract)]
	return t, ok
}

func (r *Registry) Coins() []CoinMeta { return r.coins }

func (r *Registry) Tokens() []TokenMeta { return r.tokens }

// ChainKeys returns the supported chain identifiers in registry order.
func (r *Registry) ChainKeys() []string {
	keys := make([]string, 0, len(r.coins))
	for _, c := range r.coins {
		keys = append(keys, c.ID)
	}
	return keys
}

// CgIDForSymbol maps an uppercase ticker symbol to its CoinGecko id.
func (r *Registry) CgIDForSymbol(symbol string) (string, bool) {
	id, ok := r.cgBySymbol[strings.ToUpper(symbol)]
	return id, ok
}
