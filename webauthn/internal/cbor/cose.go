package cbor

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"
)

// COSE key parsing per RFC 8152 and the IANA COSE registries.
//
// https://www.iana.org/assignments/cose/cose.xhtml#key-type-parameters
// https://www.iana.org/assignments/cose/cose.xhtml#elliptic-curves

// PublicKey is a credential public key recovered from its COSE encoding.
type PublicKey struct {
	Algorithm int64
	Public    crypto.PublicKey
}

const (
	keyTypeOKP = 1
	keyTypeEC2 = 2
	keyTypeRSA = 3

	curveP256    = 1
	curveP384    = 2
	curveP521    = 3
	curveEd25519 = 6
)

// COSE key common parameters and type-specific labels.
const (
	labelKty = 1
	labelAlg = 3

	labelCrvOrN = -1 // crv for EC2/OKP, n for RSA
	labelXOrE   = -2 // x for EC2/OKP, e for RSA
	labelY      = -3
)

// ParsePublicKey interprets a decoded COSE_Key map.
func ParsePublicKey(v Value) (*PublicKey, error) {
	if v.Kind != KindMap {
		return nil, fmt.Errorf("cose key is %s, want map", v.Kind)
	}

	ktyVal, ok := v.MapGetInt(labelKty)
	if !ok {
		return nil, fmt.Errorf("cose key has no kty")
	}
	kty, ok := ktyVal.Int64()
	if !ok {
		return nil, fmt.Errorf("cose kty is %s, want integer", ktyVal.Kind)
	}

	var alg int64
	if algVal, ok := v.MapGetInt(labelAlg); ok {
		if alg, ok = algVal.Int64(); !ok {
			return nil, fmt.Errorf("cose alg is %s, want integer", algVal.Kind)
		}
	}

	var pub crypto.PublicKey
	switch kty {
	case keyTypeEC2:
		crv, ok := mapInt(v, labelCrvOrN)
		if !ok {
			return nil, fmt.Errorf("ec2 key has no curve")
		}
		x, ok := mapBytes(v, labelXOrE)
		if !ok || len(x) == 0 {
			return nil, fmt.Errorf("ec2 key has no x coordinate")
		}
		y, ok := mapBytes(v, labelY)
		if !ok || len(y) == 0 {
			return nil, fmt.Errorf("ec2 key has no y coordinate")
		}

		var curve elliptic.Curve
		switch crv {
		case curveP256:
			curve = elliptic.P256()
		case curveP384:
			curve = elliptic.P384()
		case curveP521:
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported ec2 curve %d", crv)
		}
		pub = &ecdsa.PublicKey{
			Curve: curve,
			X:     big.NewInt(0).SetBytes(x),
			Y:     big.NewInt(0).SetBytes(y),
		}
	case keyTypeRSA:
		n, ok := mapBytes(v, labelCrvOrN)
		if !ok || len(n) == 0 {
			return nil, fmt.Errorf("rsa key has no modulus")
		}
		e, ok := mapBytes(v, labelXOrE)
		if !ok || len(e) == 0 {
			return nil, fmt.Errorf("rsa key has no public exponent")
		}
		eInt := big.NewInt(0).SetBytes(e)
		if !eInt.IsInt64() || eInt.Int64() > int64(^uint32(0)) {
			return nil, fmt.Errorf("rsa public exponent out of range")
		}
		pub = &rsa.PublicKey{
			N: big.NewInt(0).SetBytes(n),
			E: int(eInt.Int64()),
		}
	case keyTypeOKP:
		crv, ok := mapInt(v, labelCrvOrN)
		if !ok || crv != curveEd25519 {
			return nil, fmt.Errorf("unsupported okp curve %d", crv)
		}
		x, ok := mapBytes(v, labelXOrE)
		if !ok || len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("okp key has no %d-byte public key value", ed25519.PublicKeySize)
		}
		pub = ed25519.PublicKey(x)
	default:
		return nil, fmt.Errorf("unsupported key type %d", kty)
	}

	return &PublicKey{Algorithm: alg, Public: pub}, nil
}

func mapInt(v Value, label int64) (int64, bool) {
	entry, ok := v.MapGetInt(label)
	if !ok {
		return 0, false
	}
	return entry.Int64()
}

func mapBytes(v Value, label int64) ([]byte, bool) {
	entry, ok := v.MapGetInt(label)
	if !ok || entry.Kind != KindBytes {
		return nil, false
	}
	return entry.Bytes, true
}
