// Package zkey implements the z-base-32 encoded Ed25519 public key that
// doubles as a DNS label for every pkarr zone apex.
package zkey

import (
	"crypto/ed25519"
	"fmt"
	"strings"
)

// Size is the length in bytes of an Ed25519 public key.
const Size = ed25519.PublicKeySize

// alphabet is the z-base-32 alphabet (human-oriented base32, RFC-less,
// used by the pkarr/mainline ecosystem for DNS-label-safe key text).
const alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

var decodeTable = buildDecodeTable()

func buildDecodeTable() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int8(i)
	}
	return t
}

// PublicKey is the 32-byte Ed25519 verifying key that names a pkarr zone.
type PublicKey [Size]byte

// Bytes returns the raw 32-byte key.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// Ed25519 returns the key as an ed25519.PublicKey for signature verification.
func (k PublicKey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(k.Bytes())
}

// String renders the key in its canonical z-base-32 text form, the same
// string used as the DNS label below each configured origin.
func (k PublicKey) String() string {
	return encode(k[:])
}

// FromBytes builds a PublicKey from a raw 32-byte slice.
func FromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != Size {
		return k, fmt.Errorf("zkey: want %d raw bytes, got %d", Size, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Parse decodes the canonical z-base-32 text form of a public key, as found
// in a DNS label or a /pkarr/<key> URL path segment.
func Parse(label string) (PublicKey, error) {
	var k PublicKey
	raw, err := decode(strings.ToLower(label))
	if err != nil {
		return k, fmt.Errorf("zkey: %w", err)
	}
	if len(raw) != Size {
		return k, fmt.Errorf("zkey: decoded key has %d bytes, want %d", len(raw), Size)
	}
	copy(k[:], raw)
	return k, nil
}

// encode implements z-base-32 without padding, matching the 52-character
// form used for 32-byte keys throughout the pkarr ecosystem.
func encode(data []byte) string {
	var sb strings.Builder
	sb.Grow((len(data)*8 + 4) / 5)

	var buf uint32
	var bits int
	for _, b := range data {
		buf = buf<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(alphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(alphabet[(buf<<uint(5-bits))&0x1f])
	}
	return sb.String()
}

func decode(s string) ([]byte, error) {
	out := make([]byte, 0, (len(s)*5+7)/8)

	var buf uint32
	var bits int
	for i := 0; i < len(s); i++ {
		v := decodeTable[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("invalid z-base-32 character %q at position %d", s[i], i)
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte((buf>>uint(bits))&0xff))
		}
	}
	return out, nil
}
