package entity

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Kind tags the primitive variants an indexed field can carry. The set is
// closed: a new on-chain primitive means a new constant here and a compile
// error at every switch that fails to handle it.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindUint covers unsigned integers up to 64 bits.
	KindUint
	// KindBigUint covers 128- and 256-bit unsigned integers, which arrive as
	// big-endian byte strings and must keep full precision.
	KindBigUint
	KindBool
	// KindText is a UTF-8 byte sequence.
	KindText
	// KindFelt is a 32-byte field element, rendered as a 0x-prefixed hex
	// string.
	KindFelt
	// KindRecord nests another tagged record.
	KindRecord
)

// String implements fmt.Stringer for log output.
func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindBigUint:
		return "biguint"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindFelt:
		return "felt"
	case KindRecord:
		return "record"
	default:
		return "invalid"
	}
}

// Value is one decoded field value. Construct through the typed helpers;
// the zero Value is invalid and every accessor on it reports absence.
type Value struct {
	kind   Kind
	uival  uint64
	bigval *uint256.Int
	bval   bool
	text   string
	felt   []byte
	record *Record
}

// Uint wraps an unsigned integer of up to 64 bits.
func Uint(v uint64) Value { return Value{kind: KindUint, uival: v} }

// Big wraps a 128/256-bit unsigned integer. A nil argument yields an invalid
// Value.
func Big(v *uint256.Int) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: KindBigUint, bigval: new(uint256.Int).Set(v)}
}

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, bval: v} }

// Text wraps a UTF-8 string.
func Text(v string) Value { return Value{kind: KindText, text: v} }

// Felt wraps a field element of at most 32 bytes.
func Felt(b []byte) Value {
	if len(b) == 0 || len(b) > 32 {
		return Value{}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindFelt, felt: cp}
}

// Nested wraps a sub-record.
func Nested(r *Record) Value {
	if r == nil {
		return Value{}
	}
	return Value{kind: KindRecord, record: r}
}

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

// AsUint extracts an unsigned integer. Big values that fit in 64 bits are
// narrowed; wider ones report absence instead of truncating.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.uival, true
	case KindBigUint:
		if v.bigval.IsUint64() {
			return v.bigval.Uint64(), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsBig extracts an arbitrary-precision unsigned integer. Plain uints are
// widened.
func (v Value) AsBig() (*uint256.Int, bool) {
	switch v.kind {
	case KindBigUint:
		return new(uint256.Int).Set(v.bigval), true
	case KindUint:
		return uint256.NewInt(v.uival), true
	default:
		return nil, false
	}
}

// AsDecimal renders an integer value as a decimal string without precision
// loss.
func (v Value) AsDecimal() (string, bool) {
	b, ok := v.AsBig()
	if !ok {
		return "", false
	}
	return b.Dec(), true
}

// AsBool extracts a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.bval, true
}

// AsText extracts a UTF-8 string.
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsFelt renders a field element as a 0x-prefixed hex string.
func (v Value) AsFelt() (string, bool) {
	if v.kind != KindFelt {
		return "", false
	}
	return hexutil.Encode(v.felt), true
}

// AsHex renders any integer or felt value as 0x-prefixed hex. Used for
// packed-slot payloads where the caller feeds the codec directly.
func (v Value) AsHex() (string, bool) {
	switch v.kind {
	case KindFelt:
		return hexutil.Encode(v.felt), true
	case KindBigUint:
		return v.bigval.Hex(), true
	case KindUint:
		return hexutil.EncodeUint64(v.uival), true
	default:
		return "", false
	}
}

// AsRecord extracts a nested record.
func (v Value) AsRecord() (*Record, bool) {
	if v.kind != KindRecord {
		return nil, false
	}
	return v.record, true
}

// wireValue is the JSON frame shape shared by HTTP query results and
// websocket pushes: a type tag plus a representation-appropriate payload.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// UnmarshalJSON decodes the tagged wire representation. Integer widths of 64
// bits and above travel as hex strings to stay clear of JSON number
// precision; narrower widths travel as plain numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wire wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("entity: decode value frame: %w", err)
	}
	switch wire.Type {
	case "u8", "u16", "u32":
		var n uint64
		if err := json.Unmarshal(wire.Value, &n); err != nil {
			return fmt.Errorf("entity: decode %s: %w", wire.Type, err)
		}
		*v = Uint(n)
	case "u64":
		s, err := wireString(wire.Value)
		if err != nil {
			return err
		}
		n, err := parseHexUint(s)
		if err != nil {
			return err
		}
		if !n.IsUint64() {
			return fmt.Errorf("entity: u64 overflow in %q", s)
		}
		*v = Uint(n.Uint64())
	case "u128", "u256":
		s, err := wireString(wire.Value)
		if err != nil {
			return err
		}
		n, err := parseHexUint(s)
		if err != nil {
			return err
		}
		*v = Big(n)
	case "bool":
		var b bool
		if err := json.Unmarshal(wire.Value, &b); err != nil {
			return fmt.Errorf("entity: decode bool: %w", err)
		}
		*v = Bool(b)
	case "text":
		s, err := wireString(wire.Value)
		if err != nil {
			return err
		}
		*v = Text(s)
	case "felt":
		s, err := wireString(wire.Value)
		if err != nil {
			return err
		}
		b, err := parseFelt(s)
		if err != nil {
			return err
		}
		*v = Felt(b)
	case "record":
		var r Record
		if err := json.Unmarshal(wire.Value, &r); err != nil {
			return err
		}
		*v = Nested(&r)
	default:
		return fmt.Errorf("entity: unknown value type %q", wire.Type)
	}
	return nil
}

func wireString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("entity: expected string payload: %w", err)
	}
	return s, nil
}

// parseHexUint accepts big-endian hex with or without a 0x prefix, plus bare
// decimal as a fallback for hand-written fixtures.
func parseHexUint(s string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
		base = 16
	}
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, base)
	if !ok {
		return nil, fmt.Errorf("entity: invalid integer %q", s)
	}
	n, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("entity: integer %q exceeds 256 bits", s)
	}
	return n, nil
}

func parseFelt(s string) ([]byte, error) {
	n, err := parseHexUint(s)
	if err != nil {
		return nil, err
	}
	b := n.Bytes32()
	return b[:], nil
}
