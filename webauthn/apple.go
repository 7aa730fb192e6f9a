package webauthn

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
)

// Apple anonymous attestation nonce extension.
var idAppleNonce = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

// Apple has not published a schema for the extension; the nonce sits in an
// explicitly tagged field.
type appleAnonymousAttestation struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

// verifyApple validates an Apple anonymous attestation statement: the leaf
// certificate must embed SHA256(authData || clientDataHash) in the Apple
// nonce extension and must certify the credential public key itself.
//
// https://www.w3.org/TR/webauthn-3/#sctn-apple-anonymous-attestation
func verifyApple(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	certs, err := statementCerts(obj.Statement)
	if err != nil {
		return err
	}
	credCert := certs[0]

	nonce := sha256.Sum256(signedPayload(obj.RawAuthData, clientDataHash))

	var extValue []byte
	for _, ext := range credCert.Extensions {
		if ext.Id.Equal(idAppleNonce) {
			extValue = ext.Value
			break
		}
	}
	if len(extValue) == 0 {
		return fmt.Errorf("%w: certificate missing apple nonce extension", ErrAttestationInvalid)
	}

	var decoded appleAnonymousAttestation
	if _, err := asn1.Unmarshal(extValue, &decoded); err != nil {
		return fmt.Errorf("%w: apple nonce extension: %v", ErrAttestationInvalid, err)
	}
	if !bytes.Equal(decoded.Nonce, nonce[:]) {
		return fmt.Errorf("%w: apple nonce does not match expected value", ErrAttestationInvalid)
	}

	// The credential key must be the subject public key of the leaf.
	certPub, ok := credCert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: apple leaf certificate key is %T, want *ecdsa.PublicKey", ErrAttestationInvalid, credCert.PublicKey)
	}
	credPub, ok := obj.AuthData.PublicKey.(*ecdsa.PublicKey)
	if !ok || !certPub.Equal(credPub) {
		return fmt.Errorf("%w: certificate public key does not match credential key", ErrAttestationInvalid)
	}

	return rp.verifyCertChain(certs)
}
