// Package cbor implements a decoder for the CTAP2 subset of CBOR.
//
// Values decode into a tagged tree so callers can match exhaustively on the
// shape of attacker-supplied input. Indefinite-length items are rejected, as
// CTAP2 canonical encoding forbids them.
//
// https://fidoalliance.org/specs/fido-v2.0-ps-20190130/fido-client-to-authenticator-protocol-v2.0-ps-20190130.html#ctap2-canonical-cbor-encoding-form
package cbor

import (
	"errors"
	"fmt"
	"math"

	"github.com/louisbranch/keyless.space/webauthn/internal/bytebuf"
)

// ErrMalformed is wrapped by every decode failure, including input exhausted
// mid-item and inputs exceeding the nesting or item budget.
var ErrMalformed = errors.New("cbor: malformed input")

// Decoding limits. Authenticator payloads are small and shallow; anything
// beyond these bounds is hostile input, not a real credential.
const (
	maxDepth = 16
	maxItems = 10000
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindInvalid Kind = iota
	KindUint
	KindInt
	KindBytes
	KindText
	KindArray
	KindMap
	KindBool
	KindNull
	KindUndefined
	KindFloat
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindFloat:
		return "float"
	case KindTag:
		return "tag"
	default:
		return "invalid"
	}
}

// Entry is one key/value pair of a map, in encounter order.
type Entry struct {
	Key   Value
	Value Value
}

// Value is one decoded CBOR item. Exactly the field named by Kind is set.
type Value struct {
	Kind Kind

	Uint  uint64
	Int   int64
	Bytes []byte
	Text  string
	Array []Value
	Map   []Entry
	Bool  bool
	Float float64

	// Tag number and content, for Kind == KindTag.
	TagNumber  uint64
	TagContent *Value
}

// Int64 returns the numeric value of a uint or int item. The second return is
// false for non-integer kinds or unsigned values above math.MaxInt64.
func (v Value) Int64() (int64, bool) {
	switch v.Kind {
	case KindUint:
		if v.Uint > math.MaxInt64 {
			return 0, false
		}
		return int64(v.Uint), true
	case KindInt:
		return v.Int, true
	default:
		return 0, false
	}
}

// MapGetText looks up a text-string key in a map value.
func (v Value) MapGetText(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.Map {
		if e.Key.Kind == KindText && e.Key.Text == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// MapGetInt looks up an integer key in a map value.
func (v Value) MapGetInt(key int64) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.Map {
		if k, ok := e.Key.Int64(); ok && k == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Decode parses b as a single CBOR item and rejects trailing bytes.
func Decode(b []byte) (Value, error) {
	r := bytebuf.NewReader(b)
	v, err := DecodeFrom(r)
	if err != nil {
		return Value{}, err
	}
	if r.Remaining() != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after item", ErrMalformed, r.Remaining())
	}
	return v, nil
}

// DecodeFrom parses a single CBOR item from the reader's current position,
// leaving the cursor just past it. Used for authenticator data, where a COSE
// key is embedded mid-stream with extensions possibly following.
func DecodeFrom(r *bytebuf.Reader) (Value, error) {
	d := &decoder{r: r}
	return d.value(0)
}

const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6
	majorSimple   = 7
)

type decoder struct {
	r     *bytebuf.Reader
	items int
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting exceeds %d levels", ErrMalformed, maxDepth)
	}
	d.items++
	if d.items > maxItems {
		return Value{}, fmt.Errorf("%w: more than %d items", ErrMalformed, maxItems)
	}

	major, info, arg, err := d.head()
	if err != nil {
		return Value{}, err
	}

	switch major {
	case majorUnsigned:
		return Value{Kind: KindUint, Uint: arg}, nil
	case majorNegative:
		if arg > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: negative integer out of range", ErrMalformed)
		}
		return Value{Kind: KindInt, Int: -1 - int64(arg)}, nil
	case majorBytes:
		b, err := d.payload(arg)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBytes, Bytes: b}, nil
	case majorText:
		b, err := d.payload(arg)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindText, Text: string(b)}, nil
	case majorArray:
		if arg > maxItems {
			return Value{}, fmt.Errorf("%w: array length %d exceeds item budget", ErrMalformed, arg)
		}
		elems := make([]Value, 0, min(int(arg), 64))
		for i := uint64(0); i < arg; i++ {
			elem, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, elem)
		}
		return Value{Kind: KindArray, Array: elems}, nil
	case majorMap:
		if arg > maxItems {
			return Value{}, fmt.Errorf("%w: map length %d exceeds item budget", ErrMalformed, arg)
		}
		entries := make([]Entry, 0, min(int(arg), 64))
		for i := uint64(0); i < arg; i++ {
			key, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			val, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: key, Value: val})
		}
		return Value{Kind: KindMap, Map: entries}, nil
	case majorTag:
		content, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTag, TagNumber: arg, TagContent: &content}, nil
	default: // majorSimple
		return simpleValue(info, arg)
	}
}

// head reads the initial byte and any extended argument bytes of an item. For
// major type 7 with info 25-27 the argument carries the raw float bits.
func (d *decoder) head() (major, info byte, arg uint64, err error) {
	b, err := d.r.Uint8()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: input exhausted", ErrMalformed)
	}
	major = b >> 5
	info = b & 0x1f

	// https://www.rfc-editor.org/rfc/rfc8949.html#section-3-2
	switch {
	case info < 24:
		return major, info, uint64(info), nil
	case info == 24:
		n, err := d.r.Uint8()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: truncated argument", ErrMalformed)
		}
		return major, info, uint64(n), nil
	case info == 25:
		n, err := d.r.Uint16BE()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: truncated argument", ErrMalformed)
		}
		return major, info, uint64(n), nil
	case info == 26:
		n, err := d.r.Uint32BE()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: truncated argument", ErrMalformed)
		}
		return major, info, uint64(n), nil
	case info == 27:
		n, err := d.r.Uint64BE()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: truncated argument", ErrMalformed)
		}
		return major, info, n, nil
	default:
		// 28-30 are reserved; 31 is indefinite length, which CTAP2 forbids.
		return 0, 0, 0, fmt.Errorf("%w: additional info %d", ErrMalformed, info)
	}
}

func (d *decoder) payload(n uint64) ([]byte, error) {
	if n > uint64(d.r.Remaining()) {
		return nil, fmt.Errorf("%w: string length %d exceeds remaining input", ErrMalformed, n)
	}
	b, err := d.r.Bytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func simpleValue(info byte, arg uint64) (Value, error) {
	switch info {
	case 25:
		return Value{Kind: KindFloat, Float: float16to64(uint16(arg))}, nil
	case 26:
		return Value{Kind: KindFloat, Float: float64(math.Float32frombits(uint32(arg)))}, nil
	case 27:
		return Value{Kind: KindFloat, Float: math.Float64frombits(arg)}, nil
	}
	switch arg {
	case 20:
		return Value{Kind: KindBool, Bool: false}, nil
	case 21:
		return Value{Kind: KindBool, Bool: true}, nil
	case 22:
		return Value{Kind: KindNull}, nil
	case 23:
		return Value{Kind: KindUndefined}, nil
	default:
		return Value{}, fmt.Errorf("%w: simple value %d", ErrMalformed, arg)
	}
}

// float16to64 widens an IEEE 754 half-precision value.
func float16to64(bits uint16) float64 {
	sign := uint64(bits>>15) << 63
	exp := uint64(bits >> 10 & 0x1f)
	frac := uint64(bits & 0x3ff)

	switch exp {
	case 0:
		// Subnormal or zero.
		return sign2(bits) * float64(frac) * 0x1p-24
	case 0x1f:
		if frac == 0 {
			return math.Float64frombits(sign | 0x7ff0000000000000)
		}
		return math.NaN()
	default:
		return math.Float64frombits(sign | (exp-15+1023)<<52 | frac<<42)
	}
}

func sign2(bits uint16) float64 {
	if bits>>15 == 1 {
		return -1
	}
	return 1
}
