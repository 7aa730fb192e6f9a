package webauthn

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"testing"
)

func androidKeyAttestation(t *testing.T, challenge []byte, certKey *ecdsa.PrivateKey) ([]byte, []byte) {
	t.Helper()
	credKey := mustECDSAKey(t)
	if certKey == nil {
		certKey = credKey
	}
	leaf := selfSignedCert(t, &x509.Certificate{
		Subject: pkix.Name{CommonName: "android keystore"},
	}, &certKey.PublicKey, certKey)

	authData := attestedAuthData(testRPID, 0x45, 0, [16]byte{}, []byte("android-cred"), ec2COSEKey(t, &credKey.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)
	sig := signES256(t, certKey, signedPayload(authData, clientDataHash))

	attObj := encodeAttestationObject(t, "android-key", map[string]any{
		"alg": int(ES256),
		"sig": sig,
		"x5c": [][]byte{leaf.Raw},
	}, authData)
	return clientData, attObj
}

func TestVerifyAndroidKey(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := androidKeyAttestation(t, challenge, nil)

	reg, err := rp.VerifyAttestation(challenge, clientData, attObj)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Format != FormatAndroidKey {
		t.Errorf("format = %q, want android-key", reg.Format)
	}
}

func TestVerifyAndroidKeyLeafKeyMismatch(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)

	// The signature verifies with the leaf key, but the leaf does not
	// certify the credential key.
	clientData, attObj := androidKeyAttestation(t, challenge, mustECDSAKey(t))

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
	}
}
