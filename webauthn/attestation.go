package webauthn

import (
	"crypto/x509"
	"fmt"

	"github.com/louisbranch/keyless.space/webauthn/internal/cbor"
)

// Format names an attestation statement format. The set is closed: an
// unrecognized format fails parsing rather than passing through unverified.
//
// https://www.w3.org/TR/webauthn-3/#sctn-defined-attestation-formats
type Format string

const (
	FormatNone             Format = "none"
	FormatPacked           Format = "packed"
	FormatFIDOU2F          Format = "fido-u2f"
	FormatTPM              Format = "tpm"
	FormatAndroidKey       Format = "android-key"
	FormatAndroidSafetyNet Format = "android-safetynet"
	FormatApple            Format = "apple"
)

// ParseFormat maps a wire format name onto the closed enum.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatNone, FormatPacked, FormatFIDOU2F, FormatTPM,
		FormatAndroidKey, FormatAndroidSafetyNet, FormatApple:
		return Format(s), true
	default:
		return "", false
	}
}

// verifyAttestationStatement dispatches to the format's verifier. Every
// rejection wraps ErrAttestationInvalid with the format-specific reason.
func verifyAttestationStatement(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	switch obj.Format {
	case FormatNone:
		return verifyNone(obj)
	case FormatPacked:
		return verifyPacked(rp, obj, clientDataHash)
	case FormatFIDOU2F:
		return verifyFIDOU2F(rp, obj, clientDataHash)
	case FormatTPM:
		return verifyTPM(rp, obj, clientDataHash)
	case FormatAndroidKey:
		return verifyAndroidKey(rp, obj, clientDataHash)
	case FormatAndroidSafetyNet:
		return verifySafetyNet(rp, obj, clientDataHash)
	case FormatApple:
		return verifyApple(rp, obj, clientDataHash)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAttestationFormat, obj.Format)
	}
}

// statementCerts extracts and parses the x5c certificate array from an
// attestation statement. The first certificate is the attestation leaf.
func statementCerts(stmt cbor.Value) ([]*x509.Certificate, error) {
	x5c, ok := stmt.MapGetText("x5c")
	if !ok || x5c.Kind != cbor.KindArray || len(x5c.Array) == 0 {
		return nil, fmt.Errorf("%w: no x5c certificate chain", ErrAttestationInvalid)
	}
	certs := make([]*x509.Certificate, 0, len(x5c.Array))
	for i, elem := range x5c.Array {
		if elem.Kind != cbor.KindBytes {
			return nil, fmt.Errorf("%w: x5c[%d] is %s, want bytes", ErrAttestationInvalid, i, elem.Kind)
		}
		cert, err := x509.ParseCertificate(elem.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: x5c[%d]: %v", ErrAttestationInvalid, i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// verifyCertChain checks the leaf against the relying party's trust anchors,
// treating the remaining x5c entries as intermediates. A nil root pool is an
// accept-without-root-validation policy and passes.
func (rp *RelyingParty) verifyCertChain(certs []*x509.Certificate) error {
	if rp.AttestationRoots == nil {
		return nil
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         rp.AttestationRoots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: certificate chain: %v", ErrAttestationInvalid, err)
	}
	return nil
}

// statementAlg reads the "alg" entry of an attestation statement.
func statementAlg(stmt cbor.Value) (Algorithm, error) {
	algVal, ok := stmt.MapGetText("alg")
	if !ok {
		return 0, fmt.Errorf("%w: no alg", ErrAttestationInvalid)
	}
	alg, ok := algVal.Int64()
	if !ok {
		return 0, fmt.Errorf("%w: alg is %s, want integer", ErrAttestationInvalid, algVal.Kind)
	}
	return Algorithm(alg), nil
}

// statementSig reads the "sig" entry of an attestation statement.
func statementSig(stmt cbor.Value) ([]byte, error) {
	sigVal, ok := stmt.MapGetText("sig")
	if !ok || sigVal.Kind != cbor.KindBytes || len(sigVal.Bytes) == 0 {
		return nil, fmt.Errorf("%w: no sig", ErrAttestationInvalid)
	}
	return sigVal.Bytes, nil
}
