package webauthn

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/louisbranch/keyless.space/webauthn/internal/bytebuf"
	"github.com/louisbranch/keyless.space/webauthn/internal/cbor"
)

// TPM 2.0 structure constants.
//
// https://trustedcomputinggroup.org/resource/tpm-library-specification/
const (
	tpmGeneratedValue  = 0xff544347 // TPM_GENERATED_VALUE
	tpmStAttestCertify = 0x8017     // TPM_ST_ATTEST_CERTIFY

	tpmAlgRSA  = 0x0001
	tpmAlgNull = 0x0010
	tpmAlgECC  = 0x0023

	tpmAlgSHA1   = 0x0004
	tpmAlgSHA256 = 0x000b
	tpmAlgSHA384 = 0x000c
	tpmAlgSHA512 = 0x000d
)

// verifyTPM validates a tpm attestation statement: certInfo must be a
// well-formed TPMS_ATTEST over the ceremony hash, its attested name must
// commit to pubArea, pubArea's key must be the credential key, and the
// signature over certInfo must verify with the x5c leaf.
//
// https://www.w3.org/TR/webauthn-3/#sctn-tpm-attestation
func verifyTPM(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	verVal, ok := obj.Statement.MapGetText("ver")
	if !ok || verVal.Kind != cbor.KindText || verVal.Text != "2.0" {
		return fmt.Errorf("%w: tpm version must be 2.0", ErrAttestationInvalid)
	}
	alg, err := statementAlg(obj.Statement)
	if err != nil {
		return err
	}
	sig, err := statementSig(obj.Statement)
	if err != nil {
		return err
	}
	certs, err := statementCerts(obj.Statement)
	if err != nil {
		return err
	}
	pubArea, ok := statementBytes(obj.Statement, "pubArea")
	if !ok {
		return fmt.Errorf("%w: no pubArea", ErrAttestationInvalid)
	}
	certInfo, ok := statementBytes(obj.Statement, "certInfo")
	if !ok {
		return fmt.Errorf("%w: no certInfo", ErrAttestationInvalid)
	}

	attest, err := parseTPMCertInfo(certInfo)
	if err != nil {
		return err
	}

	// extraData commits certInfo to this ceremony, hashed with the
	// signature scheme's digest.
	wantExtra := hashForAlgorithm(alg, signedPayload(obj.RawAuthData, clientDataHash))
	if !bytes.Equal(attest.extraData, wantExtra) {
		return fmt.Errorf("%w: tpm extraData does not match ceremony hash", ErrAttestationInvalid)
	}

	// The attested name commits certInfo to pubArea: two bytes of name
	// algorithm followed by that algorithm's digest of pubArea.
	if len(attest.attestedName) < 2 {
		return fmt.Errorf("%w: tpm attested name too short", ErrAttestationInvalid)
	}
	nameAlg := uint16(attest.attestedName[0])<<8 | uint16(attest.attestedName[1])
	nameDigest, err := tpmHash(nameAlg, pubArea)
	if err != nil {
		return err
	}
	if !bytes.Equal(attest.attestedName[2:], nameDigest) {
		return fmt.Errorf("%w: tpm attested name does not match pubArea", ErrAttestationInvalid)
	}

	if err := verifyTPMPubArea(pubArea, obj.AuthData.PublicKey); err != nil {
		return err
	}

	if err := VerifySignature(certs[0].PublicKey, alg, certInfo, sig); err != nil {
		return fmt.Errorf("%w: tpm: %v", ErrAttestationInvalid, err)
	}
	return rp.verifyCertChain(certs)
}

type tpmAttest struct {
	extraData    []byte
	attestedName []byte
}

// parseTPMCertInfo decodes the TPMS_ATTEST fields needed for verification.
func parseTPMCertInfo(b []byte) (*tpmAttest, error) {
	r := bytebuf.NewReader(b)

	magic, err := r.Uint32BE()
	if err != nil || magic != tpmGeneratedValue {
		return nil, fmt.Errorf("%w: certInfo magic is not TPM_GENERATED_VALUE", ErrAttestationInvalid)
	}
	typ, err := r.Uint16BE()
	if err != nil || typ != tpmStAttestCertify {
		return nil, fmt.Errorf("%w: certInfo type is not TPM_ST_ATTEST_CERTIFY", ErrAttestationInvalid)
	}

	// qualifiedSigner, then extraData.
	if _, err := readTPM2B(r); err != nil {
		return nil, fmt.Errorf("%w: certInfo qualifiedSigner", ErrAttestationInvalid)
	}
	extraData, err := readTPM2B(r)
	if err != nil {
		return nil, fmt.Errorf("%w: certInfo extraData", ErrAttestationInvalid)
	}

	// clockInfo (clock, resetCount, restartCount, safe) and firmwareVersion.
	if _, err := r.Bytes(8 + 4 + 4 + 1 + 8); err != nil {
		return nil, fmt.Errorf("%w: certInfo clock info", ErrAttestationInvalid)
	}

	attestedName, err := readTPM2B(r)
	if err != nil {
		return nil, fmt.Errorf("%w: certInfo attested name", ErrAttestationInvalid)
	}
	return &tpmAttest{extraData: extraData, attestedName: attestedName}, nil
}

// verifyTPMPubArea decodes a TPMT_PUBLIC and checks its unique field holds
// the credential public key.
func verifyTPMPubArea(b []byte, credentialKey any) error {
	r := bytebuf.NewReader(b)

	keyType, err := r.Uint16BE()
	if err != nil {
		return fmt.Errorf("%w: pubArea type", ErrAttestationInvalid)
	}
	// nameAlg, objectAttributes.
	if _, err := r.Bytes(2 + 4); err != nil {
		return fmt.Errorf("%w: pubArea header", ErrAttestationInvalid)
	}
	if _, err := readTPM2B(r); err != nil {
		return fmt.Errorf("%w: pubArea authPolicy", ErrAttestationInvalid)
	}

	switch keyType {
	case tpmAlgRSA:
		// TPMS_RSA_PARMS: symmetric, scheme, keyBits, exponent.
		if err := skipTPMSymDef(r); err != nil {
			return err
		}
		if err := skipTPMScheme(r); err != nil {
			return err
		}
		if _, err := r.Uint16BE(); err != nil { // keyBits
			return fmt.Errorf("%w: pubArea keyBits", ErrAttestationInvalid)
		}
		exponent, err := r.Uint32BE()
		if err != nil {
			return fmt.Errorf("%w: pubArea exponent", ErrAttestationInvalid)
		}
		if exponent == 0 {
			exponent = 65537
		}
		modulus, err := readTPM2B(r)
		if err != nil {
			return fmt.Errorf("%w: pubArea rsa unique", ErrAttestationInvalid)
		}

		credPub, ok := credentialKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: pubArea is RSA but credential key is %T", ErrAttestationInvalid, credentialKey)
		}
		if credPub.N.Cmp(new(big.Int).SetBytes(modulus)) != 0 || credPub.E != int(exponent) {
			return fmt.Errorf("%w: pubArea key does not match credential key", ErrAttestationInvalid)
		}
	case tpmAlgECC:
		// TPMS_ECC_PARMS: symmetric, scheme, curveID, kdf.
		if err := skipTPMSymDef(r); err != nil {
			return err
		}
		if err := skipTPMScheme(r); err != nil {
			return err
		}
		if _, err := r.Uint16BE(); err != nil { // curveID
			return fmt.Errorf("%w: pubArea curve", ErrAttestationInvalid)
		}
		if err := skipTPMScheme(r); err != nil { // kdf
			return err
		}
		x, err := readTPM2B(r)
		if err != nil {
			return fmt.Errorf("%w: pubArea ecc x", ErrAttestationInvalid)
		}
		y, err := readTPM2B(r)
		if err != nil {
			return fmt.Errorf("%w: pubArea ecc y", ErrAttestationInvalid)
		}

		credPub, ok := credentialKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: pubArea is ECC but credential key is %T", ErrAttestationInvalid, credentialKey)
		}
		if credPub.X.Cmp(new(big.Int).SetBytes(x)) != 0 || credPub.Y.Cmp(new(big.Int).SetBytes(y)) != 0 {
			return fmt.Errorf("%w: pubArea key does not match credential key", ErrAttestationInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported tpm key type %#04x", ErrAttestationInvalid, keyType)
	}
	return nil
}

// readTPM2B reads a TPM2B sized buffer (16-bit length prefix).
func readTPM2B(r *bytebuf.Reader) ([]byte, error) {
	n, err := r.Uint16BE()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// skipTPMSymDef consumes a TPMT_SYM_DEF_OBJECT, which is a bare algorithm id
// when null and carries key bits and mode otherwise.
func skipTPMSymDef(r *bytebuf.Reader) error {
	alg, err := r.Uint16BE()
	if err != nil {
		return fmt.Errorf("%w: pubArea symmetric", ErrAttestationInvalid)
	}
	if alg == tpmAlgNull {
		return nil
	}
	if _, err := r.Bytes(4); err != nil {
		return fmt.Errorf("%w: pubArea symmetric parameters", ErrAttestationInvalid)
	}
	return nil
}

// skipTPMScheme consumes a TPMT scheme field, which carries a hash algorithm
// unless null.
func skipTPMScheme(r *bytebuf.Reader) error {
	alg, err := r.Uint16BE()
	if err != nil {
		return fmt.Errorf("%w: pubArea scheme", ErrAttestationInvalid)
	}
	if alg == tpmAlgNull {
		return nil
	}
	if _, err := r.Uint16BE(); err != nil {
		return fmt.Errorf("%w: pubArea scheme hash", ErrAttestationInvalid)
	}
	return nil
}

func tpmHash(alg uint16, data []byte) ([]byte, error) {
	switch alg {
	case tpmAlgSHA1:
		h := sha1.Sum(data)
		return h[:], nil
	case tpmAlgSHA256:
		h := sha256.Sum256(data)
		return h[:], nil
	case tpmAlgSHA384:
		h := sha512.Sum384(data)
		return h[:], nil
	case tpmAlgSHA512:
		h := sha512.Sum512(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("%w: unsupported tpm name algorithm %#04x", ErrAttestationInvalid, alg)
	}
}

func statementBytes(stmt cbor.Value, key string) ([]byte, bool) {
	v, ok := stmt.MapGetText(key)
	if !ok || v.Kind != cbor.KindBytes || len(v.Bytes) == 0 {
		return nil, false
	}
	return v.Bytes, true
}
