package cbor

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func intEntry(key int64, val int64) Entry {
	k := Value{Kind: KindUint, Uint: uint64(key)}
	if key < 0 {
		k = Value{Kind: KindInt, Int: key}
	}
	v := Value{Kind: KindUint, Uint: uint64(val)}
	if val < 0 {
		v = Value{Kind: KindInt, Int: val}
	}
	return Entry{Key: k, Value: v}
}

func bytesEntry(key int64, val []byte) Entry {
	k := Value{Kind: KindUint, Uint: uint64(key)}
	if key < 0 {
		k = Value{Kind: KindInt, Int: key}
	}
	return Entry{Key: k, Value: Value{Kind: KindBytes, Bytes: val}}
}

func TestParsePublicKeyEC2(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	v := Value{Kind: KindMap, Map: []Entry{
		intEntry(1, 2),  // kty EC2
		intEntry(3, -7), // alg ES256
		intEntry(-1, 1), // crv P-256
		bytesEntry(-2, priv.PublicKey.X.Bytes()),
		bytesEntry(-3, priv.PublicKey.Y.Bytes()),
	}}

	key, err := ParsePublicKey(v)
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	if key.Algorithm != -7 {
		t.Fatalf("Algorithm = %d, want -7", key.Algorithm)
	}
	pub, ok := key.Public.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("Public is %T, want *ecdsa.PublicKey", key.Public)
	}
	if !pub.Equal(&priv.PublicKey) {
		t.Fatal("parsed key does not match original")
	}
}

func TestParsePublicKeyRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	v := Value{Kind: KindMap, Map: []Entry{
		intEntry(1, 3),    // kty RSA
		intEntry(3, -257), // alg RS256
		bytesEntry(-1, priv.PublicKey.N.Bytes()),
		bytesEntry(-2, []byte{0x01, 0x00, 0x01}),
	}}

	key, err := ParsePublicKey(v)
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	pub, ok := key.Public.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("Public is %T, want *rsa.PublicKey", key.Public)
	}
	if !pub.Equal(&priv.PublicKey) {
		t.Fatal("parsed key does not match original")
	}
}

func TestParsePublicKeyEd25519(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	v := Value{Kind: KindMap, Map: []Entry{
		intEntry(1, 1),  // kty OKP
		intEntry(3, -8), // alg EdDSA
		intEntry(-1, 6), // crv Ed25519
		bytesEntry(-2, pub),
	}}

	key, err := ParsePublicKey(v)
	if err != nil {
		t.Fatalf("ParsePublicKey() error: %v", err)
	}
	got, ok := key.Public.(ed25519.PublicKey)
	if !ok {
		t.Fatalf("Public is %T, want ed25519.PublicKey", key.Public)
	}
	if !got.Equal(pub) {
		t.Fatal("parsed key does not match original")
	}
}

func TestParsePublicKeyRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		v    Value
	}{
		{"not a map", Value{Kind: KindBytes, Bytes: []byte{1}}},
		{"no kty", Value{Kind: KindMap, Map: []Entry{intEntry(3, -7)}}},
		{"unknown kty", Value{Kind: KindMap, Map: []Entry{intEntry(1, 99)}}},
		{"ec2 missing x", Value{Kind: KindMap, Map: []Entry{
			intEntry(1, 2), intEntry(-1, 1), bytesEntry(-3, []byte{1}),
		}}},
		{"ec2 unknown curve", Value{Kind: KindMap, Map: []Entry{
			intEntry(1, 2), intEntry(-1, 42),
			bytesEntry(-2, []byte{1}), bytesEntry(-3, []byte{1}),
		}}},
		{"okp wrong curve", Value{Kind: KindMap, Map: []Entry{
			intEntry(1, 1), intEntry(-1, 1), bytesEntry(-2, make([]byte, 32)),
		}}},
		{"okp short key", Value{Kind: KindMap, Map: []Entry{
			intEntry(1, 1), intEntry(-1, 6), bytesEntry(-2, make([]byte, 16)),
		}}},
		{"rsa missing exponent", Value{Kind: KindMap, Map: []Entry{
			intEntry(1, 3), bytesEntry(-1, []byte{1, 2, 3}),
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePublicKey(tc.v); err == nil {
				t.Fatal("ParsePublicKey() succeeded, want error")
			}
		})
	}
}
