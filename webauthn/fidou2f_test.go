package webauthn

import (
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"testing"
)

func fidoU2FAttestation(t *testing.T, challenge []byte, certCount int) ([]byte, []byte) {
	t.Helper()
	credKey := mustECDSAKey(t)
	attKey := mustECDSAKey(t)
	attCert := selfSignedCert(t, &x509.Certificate{
		Subject: pkix.Name{CommonName: "u2f attestation"},
	}, &attKey.PublicKey, attKey)

	credID := []byte("u2f-key-handle")
	authData := attestedAuthData(testRPID, 0x41, 0, [16]byte{}, credID, ec2COSEKey(t, &credKey.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)

	rpIDHash := sha256.Sum256([]byte(testRPID))
	publicKeyU2F := elliptic.Marshal(elliptic.P256(), credKey.PublicKey.X, credKey.PublicKey.Y)
	verification := append([]byte{0x00}, rpIDHash[:]...)
	verification = append(verification, clientDataHash[:]...)
	verification = append(verification, credID...)
	verification = append(verification, publicKeyU2F...)
	sig := signES256(t, attKey, verification)

	x5c := make([][]byte, 0, certCount)
	for i := 0; i < certCount; i++ {
		x5c = append(x5c, attCert.Raw)
	}
	attObj := encodeAttestationObject(t, "fido-u2f", map[string]any{
		"sig": sig,
		"x5c": x5c,
	}, authData)
	return clientData, attObj
}

func TestVerifyFIDOU2F(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := fidoU2FAttestation(t, challenge, 1)

	reg, err := rp.VerifyAttestation(challenge, clientData, attObj)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Format != FormatFIDOU2F {
		t.Errorf("format = %q, want fido-u2f", reg.Format)
	}
}

func TestVerifyFIDOU2FSingleCertOnly(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := fidoU2FAttestation(t, challenge, 2)

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
	}
}

func TestVerifyFIDOU2FTamperedSignature(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := fidoU2FAttestation(t, challenge, 1)
	attObj[len(attObj)-1] ^= 0x01 // flip a bit inside the trailing authData

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); err == nil {
		t.Error("tampered payload should fail")
	}
}
