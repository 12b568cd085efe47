package amount

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/ripemd160"
)

// CashAddr encoding for Bitcoin Cash P2PKH addresses. Needed to match
// Rostrum scriptSig pubkeys back to the owning address when classifying
// transaction history.

const cashCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var cashGenerators = [5]uint64{
	0x98f2bc8e61, 0x79b76d99e2, 0xf33e5fb3c4, 0xae2eabe2a8, 0x1e4f43e470,
}

// cashPrefix5 is "bitcoincash" as low 5 bits per character, plus the
// zero separator, as the checksum covers it.
var cashPrefix5 = []byte{2, 9, 20, 3, 15, 9, 14, 3, 1, 19, 8, 0}

// CashAddrFromPubkey derives the bitcoincash: P2PKH address for a
// hex-encoded compressed public key.
func CashAddrFromPubkey(pubkeyHex string) (string, error) {
	pub, err := hex.DecodeString(strings.TrimPrefix(pubkeyHex, "0x"))
	if err != nil {
		return "", err
	}
	if len(pub) == 0 {
		return "", errors.New("empty public key")
	}
	sha := sha256.Sum256(pub)
	rip := ripemd160.New()
	rip.Write(sha[:])
	hash160 := rip.Sum(nil)

	// Version byte 0x00 marks P2PKH with a 160-bit hash.
	payload := append([]byte{0x00}, hash160...)
	payload5, err := convertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(cashPrefix5)+len(payload5)+8)
	data = append(data, cashPrefix5...)
	data = append(data, payload5...)
	data = append(data, make([]byte, 8)...)
	checksum := cashPolymod(data) ^ 1

	var b strings.Builder
	b.WriteString("bitcoincash:")
	for _, v := range payload5 {
		b.WriteByte(cashCharset[v])
	}
	for i := 7; i >= 0; i-- {
		b.WriteByte(cashCharset[(checksum>>(5*uint(i)))&31])
	}
	return b.String(), nil
}

func cashPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, v := range values {
		top := c >> 35
		c = ((c & 0x07ffffffff) << 5) ^ uint64(v)
		for i, g := range cashGenerators {
			if (top>>uint(i))&1 != 0 {
				c ^= g
			}
		}
	}
	return c
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc, bits uint
	maxv := uint(1)<<toBits - 1
	out := make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)
	for _, b := range data {
		if uint(b)>>fromBits != 0 {
			return nil, errors.New("invalid data range")
		}
		acc = acc<<fromBits | uint(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, errors.New("invalid padding")
	}
	return out, nil
}
