package webauthn

import (
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"testing"
)

func appleAttestation(t *testing.T, challenge []byte, tamperNonce bool) ([]byte, []byte) {
	t.Helper()
	credKey := mustECDSAKey(t)
	caKey := mustECDSAKey(t)

	authData := attestedAuthData(testRPID, 0x45, 0, [16]byte{}, []byte("apple-cred"), ec2COSEKey(t, &credKey.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)

	nonce := sha256.Sum256(signedPayload(authData, clientDataHash))
	if tamperNonce {
		nonce[0] ^= 0xff
	}
	nonceDER, err := asn1.Marshal(appleAnonymousAttestation{Nonce: nonce[:]})
	if err != nil {
		t.Fatal(err)
	}

	// The leaf certifies the credential key itself; Apple signs it, here
	// stood in for by a throwaway CA key.
	leaf := selfSignedCert(t, &x509.Certificate{
		Subject: pkix.Name{CommonName: "apple webauthn leaf"},
		ExtraExtensions: []pkix.Extension{{
			Id:    idAppleNonce,
			Value: nonceDER,
		}},
	}, &credKey.PublicKey, caKey)

	attObj := encodeAttestationObject(t, "apple", map[string]any{
		"x5c": [][]byte{leaf.Raw},
	}, authData)
	return clientData, attObj
}

func TestVerifyApple(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := appleAttestation(t, challenge, false)

	reg, err := rp.VerifyAttestation(challenge, clientData, attObj)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Format != FormatApple {
		t.Errorf("format = %q, want apple", reg.Format)
	}
}

func TestVerifyAppleNonceMismatch(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := appleAttestation(t, challenge, true)

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
	}
}

func TestVerifyAppleWrongLeafKey(t *testing.T) {
	rp := testRP()
	credKey := mustECDSAKey(t)
	otherKey := mustECDSAKey(t)
	challenge := testChallenge(t)

	authData := attestedAuthData(testRPID, 0x45, 0, [16]byte{}, []byte("apple-cred"), ec2COSEKey(t, &credKey.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)
	nonce := sha256.Sum256(signedPayload(authData, clientDataHash))
	nonceDER, err := asn1.Marshal(appleAnonymousAttestation{Nonce: nonce[:]})
	if err != nil {
		t.Fatal(err)
	}

	// Valid nonce but the leaf certifies a different key.
	leaf := selfSignedCert(t, &x509.Certificate{
		Subject: pkix.Name{CommonName: "apple webauthn leaf"},
		ExtraExtensions: []pkix.Extension{{
			Id:    idAppleNonce,
			Value: nonceDER,
		}},
	}, &otherKey.PublicKey, otherKey)

	attObj := encodeAttestationObject(t, "apple", map[string]any{
		"x5c": [][]byte{leaf.Raw},
	}, authData)

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
	}
}
