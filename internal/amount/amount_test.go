package amount

import (
	"strings"
	"testing"

	"github.com/rawblock/chain-gateway/internal/registry"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return NewCodec(reg)
}

func TestToCanonical(t *testing.T) {
	c := newCodec(t)
	tests := []struct {
		name         string
		raw          string
		chain        string
		contract     string
		fromSmallest bool
		want         string
	}{
		{"btc satoshis", "150000000", "bitcoin", "", true, "1.50000000"},
		{"eth wei capped at 8 digits", "1000000000000000000", "ethereum", "", true, "1.00000000"},
		{"eth sub-wei rounds", "1", "ethereum", "", true, "0.00000000"},
		{"trx smallest", "1500000", "tron", "", true, "1.500000"},
		{"display units pass through", "12.5", "bitcoin", "", false, "12.50000000"},
		{"empty is zero", "", "bitcoin", "", true, "0.000000"},
		{"whitespace is zero", "  ", "ethereum", "", false, "0.000000"},
		{"exact zero is zero", "0", "ethereum", "", true, "0.000000"},
		{"zero point zero is zero", "0.0", "tron", "", false, "0.000000"},
		{"unknown chain", "123", "monero", "", true, "-0.000000"},
		{"unknown chain with empty raw", "", "monero", "", true, "-0.000000"},
		{"garbage raw", "not-a-number", "bitcoin", "", true, "-0.000000"},
		{"usdt by contract", "2500000", "ethereum", "0xdAC17F958D2ee523a2206206994597C13D831ec7", true, "2.500000"},
		{"usdt contract lowercased", "2500000", "ethereum", "0xdac17f958d2ee523a2206206994597c13d831ec7", true, "2.500000"},
		{"contract off whitelist", "123", "ethereum", "0x0000000000000000000000000000000000000001", true, "-0.000000"},
		{"xrp drops", "12", "ripple", "", true, "0.000012"},
		{"negative value keeps sign", "-150000000", "bitcoin", "", true, "-1.50000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ToCanonical(tt.raw, tt.chain, tt.contract, tt.fromSmallest)
			if got != tt.want {
				t.Errorf("ToCanonical(%q, %q, %q, %v) = %q, want %q",
					tt.raw, tt.chain, tt.contract, tt.fromSmallest, got, tt.want)
			}
		})
	}
}

func TestRenderExplicitDecimals(t *testing.T) {
	if got := Render("1000000", 6, true); got != "1.000000" {
		t.Errorf("got %q", got)
	}
	if got := Render("5", 2, true); got != "0.05" {
		t.Errorf("got %q", got)
	}
	if got := Render("", 6, true); got != Zero {
		t.Errorf("got %q", got)
	}
}

func TestCashAddrFromPubkey(t *testing.T) {
	// Compressed pubkey from the original CashAddr test vectors.
	got, err := CashAddrFromPubkey("0250863ad64a87ae8a2fe83c1af1a8403cb53f53e486d8511dad8a04887e5b2352")
	if err != nil {
		t.Fatalf("CashAddrFromPubkey: %v", err)
	}
	want := "bitcoincash:qr655kz3aymjhpupp28xpnwjul8aszmwxywced30gc"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCashAddrFromPubkeyRejectsBadHex(t *testing.T) {
	if _, err := CashAddrFromPubkey("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := CashAddrFromPubkey(""); err == nil {
		t.Error("expected error for empty pubkey")
	}
}

func TestTronAddressToParameter(t *testing.T) {
	got, err := TronAddressToParameter("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	if err != nil {
		t.Fatalf("TronAddressToParameter: %v", err)
	}
	want := strings.Repeat("0", 24) + "a614f803b6fd780986a42c78ec9c7f77e6ded13c"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(got) != 64 {
		t.Errorf("parameter length = %d, want 64", len(got))
	}
}

func TestTronAddressToHex(t *testing.T) {
	got, err := TronAddressToHex("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	if err != nil {
		t.Fatalf("TronAddressToHex: %v", err)
	}
	if got != "41a614f803b6fd780986a42c78ec9c7f77e6ded13c" {
		t.Errorf("got %q", got)
	}
}

func TestTronAddressToParameterRejectsGarbage(t *testing.T) {
	if _, err := TronAddressToParameter("not-base58-0OIl"); err == nil {
		t.Error("expected error for invalid base58check")
	}
}
