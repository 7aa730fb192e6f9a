package webauthn

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/keyless.space/webauthn/internal/cbor"
)

// Attestations older than this window are rejected, with a small allowance
// for clock skew in the other direction.
const (
	safetyNetFreshness = time.Minute
	safetyNetSkew      = 10 * time.Second
)

const safetyNetHostname = "attest.android.com"

type safetyNetClaims struct {
	Nonce              string `json:"nonce"`
	TimestampMs        int64  `json:"timestampMs"`
	ApkPackageName     string `json:"apkPackageName"`
	CtsProfileMatch    bool   `json:"ctsProfileMatch"`
	BasicIntegrity     bool   `json:"basicIntegrity"`
	jwt.RegisteredClaims
}

// verifySafetyNet validates an android-safetynet attestation statement: a JWS
// issued by Google's attestation service whose nonce binds it to this
// ceremony and whose timestamp proves freshness.
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-safetynet-attestation
func verifySafetyNet(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	respVal, ok := obj.Statement.MapGetText("response")
	if !ok || respVal.Kind != cbor.KindBytes {
		return fmt.Errorf("%w: no safetynet response", ErrAttestationInvalid)
	}

	var leaf *x509.Certificate
	claims := &safetyNetClaims{}
	_, err := jwt.ParseWithClaims(string(respVal.Bytes), claims, func(token *jwt.Token) (any, error) {
		cert, err := jwsLeafCertificate(token)
		if err != nil {
			return nil, err
		}
		leaf = cert
		return cert.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil {
		return fmt.Errorf("%w: safetynet jws: %v", ErrAttestationInvalid, err)
	}

	if err := leaf.VerifyHostname(safetyNetHostname); err != nil {
		return fmt.Errorf("%w: safetynet certificate: %v", ErrAttestationInvalid, err)
	}

	nonce := sha256.Sum256(signedPayload(obj.RawAuthData, clientDataHash))
	wantNonce := base64.StdEncoding.EncodeToString(nonce[:])
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(wantNonce)) != 1 {
		return fmt.Errorf("%w: safetynet nonce does not match ceremony", ErrAttestationInvalid)
	}

	issued := time.UnixMilli(claims.TimestampMs)
	now := time.Now()
	if issued.After(now.Add(safetyNetSkew)) {
		return fmt.Errorf("%w: safetynet attestation issued in the future", ErrAttestationInvalid)
	}
	if now.Sub(issued) > safetyNetFreshness {
		return fmt.Errorf("%w: safetynet attestation is stale", ErrAttestationInvalid)
	}

	if !claims.CtsProfileMatch {
		return fmt.Errorf("%w: device failed cts profile match", ErrAttestationInvalid)
	}
	return nil
}

// jwsLeafCertificate extracts the signing certificate from the x5c header of
// a SafetyNet JWS.
func jwsLeafCertificate(token *jwt.Token) (*x509.Certificate, error) {
	chain, ok := token.Header["x5c"].([]any)
	if !ok || len(chain) == 0 {
		return nil, fmt.Errorf("jws has no x5c header")
	}
	first, ok := chain[0].(string)
	if !ok {
		return nil, fmt.Errorf("jws x5c entry is not a string")
	}
	der, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		return nil, fmt.Errorf("jws x5c entry: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("jws leaf certificate: %v", err)
	}
	return cert, nil
}
