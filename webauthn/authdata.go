package webauthn

import (
	"crypto"
	"fmt"
	"strings"

	"github.com/louisbranch/keyless.space/webauthn/internal/bytebuf"
	"github.com/louisbranch/keyless.space/webauthn/internal/cbor"
)

// Flags is the authenticator data flag byte.
//
// https://www.w3.org/TR/webauthn-3/#authdata-flags
type Flags byte

func (f Flags) UserPresent() bool            { return f&(1<<0) != 0 }
func (f Flags) UserVerified() bool           { return f&(1<<2) != 0 }
func (f Flags) BackupEligible() bool         { return f&(1<<3) != 0 }
func (f Flags) BackedUp() bool               { return f&(1<<4) != 0 }
func (f Flags) AttestedCredentialData() bool { return f&(1<<6) != 0 }
func (f Flags) Extensions() bool             { return f&(1<<7) != 0 }

// String returns the set flags as a short mnemonic list, e.g. "UP|UV|AT".
func (f Flags) String() string {
	var vals []string
	if f.UserPresent() {
		vals = append(vals, "UP")
	}
	if f.UserVerified() {
		vals = append(vals, "UV")
	}
	if f.BackupEligible() {
		vals = append(vals, "BE")
	}
	if f.BackedUp() {
		vals = append(vals, "BS")
	}
	if f.AttestedCredentialData() {
		vals = append(vals, "AT")
	}
	if f.Extensions() {
		vals = append(vals, "ED")
	}
	return strings.Join(vals, "|")
}

// AuthenticatorData is the parsed form of the authenticator data blob sent by
// the client during both registration and authentication.
//
// https://www.w3.org/TR/webauthn-3/#authenticator-data
type AuthenticatorData struct {
	RPIDHash  [32]byte
	Flags     Flags
	SignCount uint32

	// Attested credential data, present only when Flags.AttestedCredentialData
	// is set (registration ceremonies).
	AAGUID       [16]byte
	CredentialID []byte
	// PublicKey is the decoded credential key; PublicKeyBytes is its raw COSE
	// encoding, suitable for persistence.
	PublicKey      crypto.PublicKey
	PublicKeyBytes []byte
	Algorithm      Algorithm

	// Raw CBOR extension data, if any.
	Extensions []byte
}

// ParseAuthenticatorData decodes the fixed header and, when the AT flag is
// set, the attested credential data block that follows it.
func ParseAuthenticatorData(b []byte) (*AuthenticatorData, error) {
	r := bytebuf.NewReader(b)
	var ad AuthenticatorData

	rpidHash, err := r.Bytes(32)
	if err != nil {
		return nil, fmt.Errorf("%w: rp id hash", ErrTruncatedInput)
	}
	copy(ad.RPIDHash[:], rpidHash)

	flags, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: flags", ErrTruncatedInput)
	}
	ad.Flags = Flags(flags)

	ad.SignCount, err = r.Uint32BE()
	if err != nil {
		return nil, fmt.Errorf("%w: sign counter", ErrTruncatedInput)
	}

	if ad.Flags.AttestedCredentialData() {
		aaguid, err := r.Bytes(16)
		if err != nil {
			return nil, fmt.Errorf("%w: aaguid", ErrTruncatedInput)
		}
		copy(ad.AAGUID[:], aaguid)

		credIDLen, err := r.Uint16BE()
		if err != nil {
			return nil, fmt.Errorf("%w: credential id length", ErrTruncatedInput)
		}
		credID, err := r.Bytes(int(credIDLen))
		if err != nil {
			return nil, fmt.Errorf("%w: credential id of %d bytes", ErrTruncatedInput, credIDLen)
		}
		ad.CredentialID = append([]byte{}, credID...)

		keyStart := r.Offset()
		keyValue, err := cbor.DecodeFrom(r)
		if err != nil {
			return nil, fmt.Errorf("%w: credential key: %v", ErrMalformedCBOR, err)
		}
		ad.PublicKeyBytes = append([]byte{}, b[keyStart:r.Offset()]...)

		pub, err := cbor.ParsePublicKey(keyValue)
		if err != nil {
			return nil, fmt.Errorf("%w: credential key: %v", ErrInvalidAuthenticatorData, err)
		}
		ad.PublicKey = pub.Public
		ad.Algorithm = Algorithm(pub.Algorithm)
	}

	if r.Remaining() > 0 {
		if !ad.Flags.Extensions() {
			return nil, fmt.Errorf("%w: %d trailing bytes without extension flag", ErrInvalidAuthenticatorData, r.Remaining())
		}
		ad.Extensions = append([]byte{}, r.Rest()...)
	}
	return &ad, nil
}

func parseCOSEKey(b []byte) (*cbor.PublicKey, error) {
	v, err := cbor.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: cose key: %v", ErrMalformedCBOR, err)
	}
	pub, err := cbor.ParsePublicKey(v)
	if err != nil {
		return nil, fmt.Errorf("%w: cose key: %v", ErrMalformedCBOR, err)
	}
	return pub, nil
}

// AttestationObject is the decoded top-level registration payload.
//
// https://www.w3.org/TR/webauthn-3/#attestation-object
type AttestationObject struct {
	Format    Format
	Statement cbor.Value
	AuthData  *AuthenticatorData

	// RawAuthData preserves the exact bytes the authenticator signed over.
	RawAuthData []byte
}

// ParseAttestationObject decodes the CBOR envelope produced by
// navigator.credentials.create and parses the embedded authenticator data.
func ParseAttestationObject(b []byte) (*AttestationObject, error) {
	root, err := cbor.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCBOR, err)
	}
	if root.Kind != cbor.KindMap {
		return nil, fmt.Errorf("%w: attestation object is %s, want map", ErrMalformedCBOR, root.Kind)
	}

	fmtVal, ok := root.MapGetText("fmt")
	if !ok || fmtVal.Kind != cbor.KindText {
		return nil, fmt.Errorf("%w: missing fmt", ErrMalformedCBOR)
	}
	format, ok := ParseFormat(fmtVal.Text)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttestationFormat, fmtVal.Text)
	}

	stmtVal, ok := root.MapGetText("attStmt")
	if !ok || stmtVal.Kind != cbor.KindMap {
		return nil, fmt.Errorf("%w: missing attStmt", ErrMalformedCBOR)
	}

	authDataVal, ok := root.MapGetText("authData")
	if !ok || authDataVal.Kind != cbor.KindBytes {
		return nil, fmt.Errorf("%w: missing authData", ErrMalformedCBOR)
	}

	authData, err := ParseAuthenticatorData(authDataVal.Bytes)
	if err != nil {
		return nil, err
	}

	return &AttestationObject{
		Format:      format,
		Statement:   stmtVal,
		AuthData:    authData,
		RawAuthData: authDataVal.Bytes,
	}, nil
}
