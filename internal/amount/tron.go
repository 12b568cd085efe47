package amount

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const tronVersionByte = 0x41

// TronAddressToParameter converts a base58check Tron address into the
// zero-padded 64-character hex word used as an ABI call argument
// (TRC20 balanceOf and friends).
func TronAddressToParameter(addr string) (string, error) {
	raw, version, err := base58.CheckDecode(addr)
	if err != nil {
		return "", fmt.Errorf("decode tron address: %w", err)
	}
	if version != tronVersionByte {
		return "", fmt.Errorf("unexpected tron address version 0x%02x", version)
	}
	h := hex.EncodeToString(raw)
	if len(h) > 64 {
		return "", fmt.Errorf("tron address payload too long: %d hex chars", len(h))
	}
	return strings.Repeat("0", 64-len(h)) + h, nil
}

// TronAddressToHex returns the full hex form including the 0x41 version
// byte, as TronGrid wallet endpoints expect.
func TronAddressToHex(addr string) (string, error) {
	raw, version, err := base58.CheckDecode(addr)
	if err != nil {
		return "", fmt.Errorf("decode tron address: %w", err)
	}
	return hex.EncodeToString(append([]byte{version}, raw...)), nil
}
