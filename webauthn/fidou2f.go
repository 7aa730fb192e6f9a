package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
)

// verifyFIDOU2F validates a legacy U2F attestation statement. The signature
// covers a reconstructed U2F registration message rather than the raw
// authenticator data, and only P-256 credential keys are possible.
//
// https://www.w3.org/TR/webauthn-3/#sctn-fido-u2f-attestation
func verifyFIDOU2F(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	sig, err := statementSig(obj.Statement)
	if err != nil {
		return err
	}
	certs, err := statementCerts(obj.Statement)
	if err != nil {
		return err
	}
	if len(certs) != 1 {
		return fmt.Errorf("%w: fido-u2f x5c must hold exactly one certificate, has %d", ErrAttestationInvalid, len(certs))
	}
	attCert := certs[0]

	certPub, ok := attCert.PublicKey.(*ecdsa.PublicKey)
	if !ok || certPub.Curve != elliptic.P256() {
		return fmt.Errorf("%w: fido-u2f attestation certificate key must be ECDSA P-256", ErrAttestationInvalid)
	}

	credPub, ok := obj.AuthData.PublicKey.(*ecdsa.PublicKey)
	if !ok || credPub.Curve != elliptic.P256() {
		return fmt.Errorf("%w: fido-u2f credential key must be ECDSA P-256", ErrAttestationInvalid)
	}
	publicKeyU2F := elliptic.Marshal(elliptic.P256(), credPub.X, credPub.Y)

	// U2F registration data: a reserved zero byte, the application parameter
	// (rp id hash), the challenge parameter (client data hash), the key
	// handle and the uncompressed credential key.
	verification := make([]byte, 0, 1+32+32+len(obj.AuthData.CredentialID)+len(publicKeyU2F))
	verification = append(verification, 0x00)
	verification = append(verification, obj.AuthData.RPIDHash[:]...)
	verification = append(verification, clientDataHash[:]...)
	verification = append(verification, obj.AuthData.CredentialID...)
	verification = append(verification, publicKeyU2F...)

	if err := VerifySignature(certPub, ES256, verification, sig); err != nil {
		return fmt.Errorf("%w: fido-u2f: %v", ErrAttestationInvalid, err)
	}
	return rp.verifyCertChain(certs)
}
