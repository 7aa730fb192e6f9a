package webauthn

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
)

// verifyAndroidKey validates an android-key attestation statement: the
// signature covers authData || clientDataHash and is produced by the key the
// leaf certificate certifies, which must be the credential key itself.
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-key-attestation
func verifyAndroidKey(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
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
	credCert := certs[0]

	signed := signedPayload(obj.RawAuthData, clientDataHash)
	if err := VerifySignature(credCert.PublicKey, alg, signed, sig); err != nil {
		return fmt.Errorf("%w: android-key: %v", ErrAttestationInvalid, err)
	}

	if !publicKeysEqual(credCert.PublicKey, obj.AuthData.PublicKey) {
		return fmt.Errorf("%w: certificate public key does not match credential key", ErrAttestationInvalid)
	}

	return rp.verifyCertChain(certs)
}

func publicKeysEqual(a, b any) bool {
	switch pub := a.(type) {
	case *ecdsa.PublicKey:
		other, ok := b.(*ecdsa.PublicKey)
		return ok && pub.Equal(other)
	case *rsa.PublicKey:
		other, ok := b.(*rsa.PublicKey)
		return ok && pub.Equal(other)
	default:
		return false
	}
}
