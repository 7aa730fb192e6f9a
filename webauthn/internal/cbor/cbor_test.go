package cbor

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/louisbranch/keyless.space/webauthn/internal/bytebuf"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode hex %q: %v", s, err)
	}
	return b
}

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"uint small", "0a", Value{Kind: KindUint, Uint: 10}},
		{"uint 1 byte arg", "1864", Value{Kind: KindUint, Uint: 100}},
		{"uint 2 byte arg", "1903e8", Value{Kind: KindUint, Uint: 1000}},
		{"uint 4 byte arg", "1a000f4240", Value{Kind: KindUint, Uint: 1000000}},
		{"uint 8 byte arg", "1b000000e8d4a51000", Value{Kind: KindUint, Uint: 1000000000000}},
		{"negative", "20", Value{Kind: KindInt, Int: -1}},
		{"negative 1 byte arg", "3863", Value{Kind: KindInt, Int: -100}},
		{"false", "f4", Value{Kind: KindBool, Bool: false}},
		{"true", "f5", Value{Kind: KindBool, Bool: true}},
		{"null", "f6", Value{Kind: KindNull}},
		{"undefined", "f7", Value{Kind: KindUndefined}},
		{"float64", "fb3ff199999999999a", Value{Kind: KindFloat, Float: 1.1}},
		{"float32", "fa47c35000", Value{Kind: KindFloat, Float: 100000.0}},
		{"float16", "f93c00", Value{Kind: KindFloat, Float: 1.0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(mustHex(t, tc.in))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got.Kind != tc.want.Kind || got.Uint != tc.want.Uint ||
				got.Int != tc.want.Int || got.Bool != tc.want.Bool ||
				got.Float != tc.want.Float {
				t.Fatalf("Decode() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecodeStrings(t *testing.T) {
	got, err := Decode(mustHex(t, "6449455446"))
	if err != nil || got.Kind != KindText || got.Text != "IETF" {
		t.Fatalf("Decode(text) = %+v, %v", got, err)
	}

	got, err = Decode(mustHex(t, "4401020304"))
	if err != nil || got.Kind != KindBytes || !bytes.Equal(got.Bytes, []byte{1, 2, 3, 4}) {
		t.Fatalf("Decode(bytes) = %+v, %v", got, err)
	}
}

func TestDecodeMapPreservesOrder(t *testing.T) {
	// {"b": 2, "a": 1} — non-canonical key order must survive.
	got, err := Decode(mustHex(t, "a2616202616101"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Kind != KindMap || len(got.Map) != 2 {
		t.Fatalf("Decode() = %+v, want 2-entry map", got)
	}
	if got.Map[0].Key.Text != "b" || got.Map[1].Key.Text != "a" {
		t.Fatalf("map keys = %q, %q; want b, a", got.Map[0].Key.Text, got.Map[1].Key.Text)
	}
	if v, ok := got.MapGetText("a"); !ok || v.Uint != 1 {
		t.Fatalf("MapGetText(a) = %+v, %v", v, ok)
	}
	if _, ok := got.MapGetText("missing"); ok {
		t.Fatal("MapGetText(missing) found a value")
	}
}

func TestDecodeNested(t *testing.T) {
	// [1, [2, 3], {4: h'05'}]
	got, err := Decode(mustHex(t, "8301820203a1044105"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Kind != KindArray || len(got.Array) != 3 {
		t.Fatalf("Decode() = %+v, want 3-element array", got)
	}
	inner := got.Array[1]
	if inner.Kind != KindArray || len(inner.Array) != 2 || inner.Array[1].Uint != 3 {
		t.Fatalf("inner array = %+v", inner)
	}
	m := got.Array[2]
	v, ok := m.MapGetInt(4)
	if !ok || v.Kind != KindBytes || !bytes.Equal(v.Bytes, []byte{5}) {
		t.Fatalf("MapGetInt(4) = %+v, %v", v, ok)
	}
}

func TestDecodeTag(t *testing.T) {
	// 1(1363896240)
	got, err := Decode(mustHex(t, "c11a514b67b0"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Kind != KindTag || got.TagNumber != 1 || got.TagContent == nil || got.TagContent.Uint != 1363896240 {
		t.Fatalf("Decode() = %+v", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"truncated argument", "19ff"},
		{"string past end", "44010203"},
		{"indefinite bytes", "5f42010243030405ff"},
		{"indefinite map", "bf61610161620280ff"},
		{"reserved info", "1c"},
		{"map missing value", "a16161"},
		{"trailing bytes", "0101"},
		{"unassigned simple", "f810"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(mustHex(t, tc.in)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode(%s) error = %v, want ErrMalformed", tc.in, err)
			}
		})
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	// 20 nested single-element arrays around a zero.
	var in []byte
	for i := 0; i < 20; i++ {
		in = append(in, 0x81)
	}
	in = append(in, 0x00)
	if _, err := Decode(in); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode(deep nesting) error = %v, want ErrMalformed", err)
	}
}

func TestDecodeDeclaredLengthBomb(t *testing.T) {
	// Array claiming 2^32 elements with no content.
	if _, err := Decode(mustHex(t, "9affffffff")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode(length bomb) error = %v, want ErrMalformed", err)
	}
}

func TestDecodeFromLeavesTrailer(t *testing.T) {
	in := append(mustHex(t, "a16361626301"), 0xde, 0xad)
	r := bytebuf.NewReader(in)
	got, err := DecodeFrom(r)
	if err != nil {
		t.Fatalf("DecodeFrom() error: %v", err)
	}
	if got.Kind != KindMap {
		t.Fatalf("DecodeFrom() = %+v, want map", got)
	}
	if rest := r.Rest(); !bytes.Equal(rest, []byte{0xde, 0xad}) {
		t.Fatalf("Rest() = %x, want dead", rest)
	}
}
