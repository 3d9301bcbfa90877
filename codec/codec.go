package codec

import (
	"fmt"
	"math/big"
	"strings"
)

// Scheme identifies how per-slot values are laid out inside the packed integer.
// The on-chain encoding differs between deployments, so the active scheme is an
// explicit configuration choice rather than something the decoder guesses.
type Scheme string

const (
	// SchemeFixedBits packs each slot into a constant-width bit field, slot
	// index zero in the least-significant position.
	SchemeFixedBits Scheme = "fixed-bits"
	// SchemeFixedRadix packs each slot as a positional digit in base
	// slotMax+1.
	SchemeFixedRadix Scheme = "fixed-radix"
)

// DefaultBitWidth is the field width observed on deployed contracts using the
// fixed-bits scheme.
const DefaultBitWidth = 12

// ParseScheme normalises a configuration string into a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeFixedBits:
		return SchemeFixedBits, nil
	case SchemeFixedRadix:
		return SchemeFixedRadix, nil
	default:
		return "", fmt.Errorf("codec: unknown scheme %q", s)
	}
}

// Codec decodes packed slot integers under a fixed scheme. It carries no
// mutable state; a single instance is safe for concurrent use.
type Codec struct {
	scheme   Scheme
	bitWidth uint
}

// New builds a codec for the given scheme. bitWidth applies to the fixed-bits
// scheme only; zero selects DefaultBitWidth. Widths above 16 bits cannot be
// represented in a slot value and are rejected.
func New(scheme Scheme, bitWidth uint8) (*Codec, error) {
	switch scheme {
	case SchemeFixedBits, SchemeFixedRadix:
	default:
		return nil, fmt.Errorf("codec: unknown scheme %q", scheme)
	}
	width := uint(bitWidth)
	if width == 0 {
		width = DefaultBitWidth
	}
	if width > 16 {
		return nil, fmt.Errorf("codec: bit width %d exceeds 16", width)
	}
	return &Codec{scheme: scheme, bitWidth: width}, nil
}

// Scheme reports the configured scheme.
func (c *Codec) Scheme() Scheme { return c.scheme }

// Decode unpacks up to slotCount values from packed. A nil or zero packed
// value yields an all-zero result. The input is never mutated. Values that
// fall outside the representable range for the scheme decode as zero rather
// than propagating a corrupted reading.
func (c *Codec) Decode(packed *big.Int, slotCount uint8, slotMax uint16) []uint16 {
	values := make([]uint16, slotCount)
	if packed == nil || packed.Sign() == 0 {
		return values
	}
	rest := new(big.Int).Set(packed)
	switch c.scheme {
	case SchemeFixedRadix:
		radix := big.NewInt(int64(slotMax) + 1)
		digit := new(big.Int)
		for i := range values {
			if rest.Sign() == 0 {
				break
			}
			rest.DivMod(rest, radix, digit)
			values[i] = clamp(digit.Uint64(), uint64(slotMax))
		}
	default: // SchemeFixedBits
		mask := new(big.Int).Lsh(big.NewInt(1), c.bitWidth)
		mask.Sub(mask, big.NewInt(1))
		limit := mask.Uint64()
		field := new(big.Int)
		for i := range values {
			if rest.Sign() == 0 {
				break
			}
			field.And(rest, mask)
			values[i] = clamp(field.Uint64(), limit)
			rest.Rsh(rest, c.bitWidth)
		}
	}
	return values
}

// DecodeHex unpacks a hex-encoded packed value, accepting input with or
// without a 0x prefix. An empty string decodes as all zeros; malformed hex is
// an error so callers can skip the record.
func (c *Codec) DecodeHex(s string, slotCount uint8, slotMax uint16) ([]uint16, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return make([]uint16, slotCount), nil
	}
	packed, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("codec: invalid packed hex %q", s)
	}
	return c.Decode(packed, slotCount, slotMax), nil
}

// Encode packs values under the configured scheme. It is the right-inverse of
// Decode for values within the scheme's per-slot range and exists chiefly for
// verification.
func (c *Codec) Encode(values []uint16, slotMax uint16) *big.Int {
	packed := new(big.Int)
	switch c.scheme {
	case SchemeFixedRadix:
		radix := big.NewInt(int64(slotMax) + 1)
		for i := len(values) - 1; i >= 0; i-- {
			packed.Mul(packed, radix)
			packed.Add(packed, big.NewInt(int64(values[i])))
		}
	default:
		for i := len(values) - 1; i >= 0; i-- {
			packed.Lsh(packed, c.bitWidth)
			packed.Or(packed, big.NewInt(int64(values[i])))
		}
	}
	return packed
}

// FilledSlots returns the 1-based positions holding a non-zero value.
func FilledSlots(values []uint16) []int {
	filled := make([]int, 0, len(values))
	for i, v := range values {
		if v != 0 {
			filled = append(filled, i+1)
		}
	}
	return filled
}

func clamp(v, limit uint64) uint16 {
	if v > limit || v > 0xffff {
		return 0
	}
	return uint16(v)
}
