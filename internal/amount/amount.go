// Package amount renders chain-native quantities as canonical decimal
// strings. Everything goes through math/big rationals so 18-decimal wei
// values never touch a float.
package amount

import (
	"math/big"
	"strings"

	"github.com/rawblock/chain-gateway/internal/registry"
)

const (
	// Unknown marks values that could not be resolved: unknown chain,
	// contract outside the whitelist, or an unparseable upstream number.
	Unknown = "-0.000000"

	// Zero is the canonical rendering of an exactly-zero amount,
	// regardless of the asset's decimal count.
	Zero = "0.000000"

	maxFractionDigits = 8
)

// Codec converts raw upstream values into canonical decimal strings
// using the decimal counts from the coin and token registry.
type Codec struct {
	reg *registry.Registry
}

func NewCodec(reg *registry.Registry) *Codec {
	return &Codec{reg: reg}
}

// Decimals resolves the decimal count for a chain, or for a whitelisted
// token when contract is non-empty.
func (c *Codec) Decimals(chain, contract string) (int, bool) {
	if contract != "" {
		tok, ok := c.reg.TokenByContract(contract)
		if !ok {
			return 0, false
		}
		return tok.Decimals, true
	}
	coin, ok := c.reg.CoinByID(chain)
	if !ok {
		return 0, false
	}
	return coin.Decimals, true
}

// ToCanonical renders raw as a canonical decimal string. fromSmallest
// divides by 10^decimals first (wei, satoshi, drops); otherwise raw is
// already in display units. Empty input renders as zero, unresolvable
// input as the Unknown sentinel.
func (c *Codec) ToCanonical(raw, chain, contract string, fromSmallest bool) string {
	// Decimals resolve first: an unresolvable asset is Unknown even
	// when the raw value is empty.
	decimals, ok := c.Decimals(chain, contract)
	if !ok {
		return Unknown
	}
	if strings.TrimSpace(raw) == "" {
		return Zero
	}
	return Render(raw, decimals, fromSmallest)
}

// Render formats raw with an explicit decimal count, for callers that
// already resolved decimals out of band (TRC20 token metadata, fee math).
func Render(raw string, decimals int, fromSmallest bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Zero
	}
	v, ok := new(big.Rat).SetString(raw)
	if !ok {
		return Unknown
	}
	if fromSmallest {
		v.Quo(v, pow10(decimals))
	}
	if v.Sign() == 0 {
		return Zero
	}
	digits := decimals
	if digits > maxFractionDigits {
		digits = maxFractionDigits
	}
	return v.FloatString(digits)
}

func pow10(n int) *big.Rat {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	return new(big.Rat).SetInt(scale)
}
