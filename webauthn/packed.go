package webauthn

import (
	"bytes"
	"encoding/asn1"
	"fmt"
)

// id-fido-gen-ce-aaguid, carried by packed attestation certificates.
var idFIDOGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

// verifyPacked validates a packed attestation statement, either against the
// x5c leaf certificate or, when x5c is absent, as self-attestation with the
// credential's own key.
//
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation
func verifyPacked(rp *RelyingParty, obj *AttestationObject, clientDataHash [32]byte) error {
	alg, err := statementAlg(obj.Statement)
	if err != nil {
		return err
	}
	sig, err := statementSig(obj.Statement)
	if err != nil {
		return err
	}

	signed := signedPayload(obj.RawAuthData, clientDataHash)

	if _, hasX5C := obj.Statement.MapGetText("x5c"); !hasX5C {
		// Self attestation: sig is produced with the credential private key
		// and alg must match the credential key's algorithm.
		if alg != obj.AuthData.Algorithm {
			return fmt.Errorf("%w: self-attestation alg %s does not match credential alg %s",
				ErrAttestationInvalid, alg, obj.AuthData.Algorithm)
		}
		if err := VerifySignature(obj.AuthData.PublicKey, alg, signed, sig); err != nil {
			return fmt.Errorf("%w: self-attestation: %v", ErrAttestationInvalid, err)
		}
		return nil
	}

	certs, err := statementCerts(obj.Statement)
	if err != nil {
		return err
	}
	attCert := certs[0]

	if err := VerifySignature(attCert.PublicKey, alg, signed, sig); err != nil {
		return fmt.Errorf("%w: packed: %v", ErrAttestationInvalid, err)
	}

	// Certificate requirements per §8.2.1.
	if attCert.Version != 3 {
		return fmt.Errorf("%w: attestation certificate version %d, must be 3", ErrAttestationInvalid, attCert.Version)
	}
	ou := attCert.Subject.OrganizationalUnit
	if len(ou) != 1 || ou[0] != "Authenticator Attestation" {
		return fmt.Errorf("%w: attestation certificate Subject-OU must be 'Authenticator Attestation', got %v", ErrAttestationInvalid, ou)
	}
	if attCert.IsCA {
		return fmt.Errorf("%w: attestation certificate must not be a CA", ErrAttestationInvalid)
	}

	// When the certificate carries id-fido-gen-ce-aaguid it must agree with
	// the authenticator data.
	for _, ext := range attCert.Extensions {
		if !ext.Id.Equal(idFIDOGenCEAAGUID) {
			continue
		}
		var aaguid []byte
		if _, err := asn1.Unmarshal(ext.Value, &aaguid); err != nil {
			return fmt.Errorf("%w: id-fido-gen-ce-aaguid extension: %v", ErrAttestationInvalid, err)
		}
		if len(aaguid) != 16 || !bytes.Equal(aaguid, obj.AuthData.AAGUID[:]) {
			return fmt.Errorf("%w: certificate aaguid does not match authenticator data", ErrAttestationInvalid)
		}
		break
	}

	return rp.verifyCertChain(certs)
}

// signedPayload builds authenticatorData || clientDataHash, the message every
// signature-bearing format signs over.
func signedPayload(rawAuthData []byte, clientDataHash [32]byte) []byte {
	signed := make([]byte, 0, len(rawAuthData)+len(clientDataHash))
	signed = append(signed, rawAuthData...)
	signed = append(signed, clientDataHash[:]...)
	return signed
}
