// Package webauthn implements the WebAuthn relying-party protocol engine:
// parsing of client data, authenticator data and attestation objects, and
// cryptographic verification of attestations and assertions.
//
// The package is transport-agnostic. It consumes already-framed byte payloads
// (clientDataJSON, attestation objects, assertion signatures) and reports
// structured errors; challenge lifecycle and credential persistence are the
// caller's concern.
//
// https://www.w3.org/TR/webauthn-3/
package webauthn

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Algorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

const (
	ES256 Algorithm = -7
	ES384 Algorithm = -35
	ES512 Algorithm = -36
	EdDSA Algorithm = -8
	RS256 Algorithm = -257
	RS384 Algorithm = -258
	RS512 Algorithm = -259
)

var algStrings = map[Algorithm]string{
	ES256: "ES256",
	ES384: "ES384",
	ES512: "ES512",
	EdDSA: "EdDSA",
	RS256: "RS256",
	RS384: "RS384",
	RS512: "RS512",
}

func (a Algorithm) String() string {
	if s, ok := algStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// RelyingParty identifies the server verifying credentials.
type RelyingParty struct {
	// ID is the relying party identifier, normally the effective domain of
	// Origin. For example "login.example.com".
	//
	// https://www.w3.org/TR/webauthn-3/#relying-party-identifier
	ID string

	// Origin is the base URL the browser reports in clientDataJSON. For
	// example "https://login.example.com".
	Origin string

	// AttestationRoots, when set, enables chain validation of x5c
	// certificates against these trust anchors. Nil skips root validation,
	// which is the usual relying-party posture for self and none attestation.
	AttestationRoots *x509.CertPool
}

// Registration is the verified outcome of a credential creation ceremony.
type Registration struct {
	// CredentialID is the authenticator-generated identifier presented on
	// later assertions.
	CredentialID []byte

	// PublicKey is the credential key; PublicKeyBytes is its COSE encoding
	// for persistence.
	PublicKey      crypto.PublicKey
	PublicKeyBytes []byte
	Algorithm      Algorithm

	Flags     Flags
	SignCount uint32
	AAGUID    [16]byte
	Format    Format
}

// Assertion is the verified outcome of an authentication ceremony.
type Assertion struct {
	Flags Flags

	// SignCount is the counter reported by the authenticator. Zero for
	// authenticators that don't track one.
	//
	// https://www.w3.org/TR/webauthn-3/#sctn-sign-counter
	SignCount uint32
}

// VerifyAttestation validates a credential creation response. challenge is
// the value the relying party issued for this ceremony; clientDataJSON and
// attestationObject are the raw response fields from the client.
func (rp *RelyingParty) VerifyAttestation(challenge, clientDataJSON, attestationObject []byte) (*Registration, error) {
	if err := rp.verifyClientData("webauthn.create", challenge, clientDataJSON); err != nil {
		return nil, err
	}

	obj, err := ParseAttestationObject(attestationObject)
	if err != nil {
		return nil, err
	}
	if !obj.AuthData.Flags.AttestedCredentialData() {
		return nil, fmt.Errorf("%w: no attested credential data", ErrInvalidAuthenticatorData)
	}
	if err := rp.verifyRPIDHash(obj.AuthData.RPIDHash); err != nil {
		return nil, err
	}
	if !obj.AuthData.Flags.UserPresent() {
		return nil, fmt.Errorf("%w: user presence not asserted", ErrInvalidAuthenticatorData)
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	if err := verifyAttestationStatement(rp, obj, clientDataHash); err != nil {
		return nil, err
	}

	return &Registration{
		CredentialID:   obj.AuthData.CredentialID,
		PublicKey:      obj.AuthData.PublicKey,
		PublicKeyBytes: obj.AuthData.PublicKeyBytes,
		Algorithm:      obj.AuthData.Algorithm,
		Flags:          obj.AuthData.Flags,
		SignCount:      obj.AuthData.SignCount,
		AAGUID:         obj.AuthData.AAGUID,
		Format:         obj.Format,
	}, nil
}

// VerifyAssertion validates an authentication response against a previously
// registered credential key. authData must be the raw authenticator data
// bytes, as the signature covers their exact encoding.
func (rp *RelyingParty) VerifyAssertion(pub crypto.PublicKey, alg Algorithm, challenge, clientDataJSON, authData, sig []byte) (*Assertion, error) {
	if err := rp.verifyClientData("webauthn.get", challenge, clientDataJSON); err != nil {
		return nil, err
	}

	parsed, err := ParseAuthenticatorData(authData)
	if err != nil {
		return nil, err
	}
	if err := rp.verifyRPIDHash(parsed.RPIDHash); err != nil {
		return nil, err
	}
	if !parsed.Flags.UserPresent() {
		return nil, fmt.Errorf("%w: user presence not asserted", ErrInvalidAuthenticatorData)
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(authData)+len(clientDataHash))
	signed = append(signed, authData...)
	signed = append(signed, clientDataHash[:]...)
	if err := VerifySignature(pub, alg, signed, sig); err != nil {
		return nil, err
	}

	return &Assertion{
		Flags:     parsed.Flags,
		SignCount: parsed.SignCount,
	}, nil
}

// ParseCredentialKey decodes a stored COSE public key back into a usable
// verification key and its algorithm.
func ParseCredentialKey(coseKey []byte) (crypto.PublicKey, Algorithm, error) {
	pub, err := parseCOSEKey(coseKey)
	if err != nil {
		return nil, 0, err
	}
	return pub.Public, Algorithm(pub.Algorithm), nil
}

func (rp *RelyingParty) verifyRPIDHash(got [32]byte) error {
	want := sha256.Sum256([]byte(rp.ID))
	if !bytes.Equal(want[:], got[:]) {
		return fmt.Errorf("%w: issued for a different relying party", ErrInvalidAuthenticatorData)
	}
	return nil
}

func (rp *RelyingParty) verifyClientData(ceremonyType string, challenge, clientDataJSON []byte) error {
	var cd clientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClientData, err)
	}
	if cd.Type != ceremonyType {
		return fmt.Errorf("%w: type is %q, want %q", ErrInvalidClientData, cd.Type, ceremonyType)
	}
	if cd.Origin != rp.Origin {
		return fmt.Errorf("%w: origin is %q, want %q", ErrInvalidClientData, cd.Origin, rp.Origin)
	}
	if !cd.Challenge.Equal(challenge) {
		return ErrChallengeMismatch
	}
	return nil
}

// VerifySignature checks sig over data using the verification primitive the
// COSE algorithm calls for.
func VerifySignature(pub crypto.PublicKey, alg Algorithm, data, sig []byte) error {
	switch alg {
	case ES256, ES384, ES512:
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: public key is %T, want *ecdsa.PublicKey for %s", ErrSignatureInvalid, pub, alg)
		}
		digest := hashForAlgorithm(alg, data)
		if !ecdsa.VerifyASN1(ecdsaPub, digest, sig) {
			return fmt.Errorf("%w: %s", ErrSignatureInvalid, alg)
		}
	case EdDSA:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: public key is %T, want ed25519.PublicKey", ErrSignatureInvalid, pub)
		}
		if !ed25519.Verify(edPub, data, sig) {
			return fmt.Errorf("%w: EdDSA", ErrSignatureInvalid)
		}
	case RS256, RS384, RS512:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: public key is %T, want *rsa.PublicKey for %s", ErrSignatureInvalid, pub, alg)
		}
		digest := hashForAlgorithm(alg, data)
		if err := rsa.VerifyPKCS1v15(rsaPub, cryptoHash(alg), digest, sig); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSignatureInvalid, alg, err)
		}
	default:
		return fmt.Errorf("%w: unsupported algorithm %s", ErrSignatureInvalid, alg)
	}
	return nil
}

func hashForAlgorithm(alg Algorithm, data []byte) []byte {
	switch alg {
	case ES384, RS384:
		h := sha512.Sum384(data)
		return h[:]
	case ES512, RS512:
		h := sha512.Sum512(data)
		return h[:]
	default:
		h := sha256.Sum256(data)
		return h[:]
	}
}

func cryptoHash(alg Algorithm) crypto.Hash {
	switch alg {
	case ES384, RS384:
		return crypto.SHA384
	case ES512, RS512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// clientDataChallenge carries the base64url challenge encoding used inside
// clientDataJSON.
//
// https://www.w3.org/TR/webauthn-3/#dom-authenticatorresponse-clientdatajson
type clientDataChallenge []byte

func (c clientDataChallenge) Equal(b []byte) bool {
	return subtle.ConstantTimeCompare([]byte(c), b) == 1
}

func (c *clientDataChallenge) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("challenge is not a string: %v", err)
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*c = clientDataChallenge(data)
	return nil
}

// https://www.w3.org/TR/webauthn-3/#dictionary-client-data
type clientData struct {
	Type        string              `json:"type"`
	Challenge   clientDataChallenge `json:"challenge"`
	Origin      string              `json:"origin"`
	CrossOrigin bool                `json:"crossOrigin"`
}
