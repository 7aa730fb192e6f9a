package webauthn

import (
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"testing"
)

func packedSelfAttestation(t *testing.T, challenge []byte) ([]byte, []byte) {
	t.Helper()
	key := mustECDSAKey(t)
	authData := attestedAuthData(testRPID, 0x45, 1, [16]byte{}, []byte("cred"), ec2COSEKey(t, &key.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)
	sig := signES256(t, key, signedPayload(authData, clientDataHash))
	attObj := encodeAttestationObject(t, "packed", map[string]any{
		"alg": int(ES256),
		"sig": sig,
	}, authData)
	return clientData, attObj
}

func TestVerifyPackedSelfAttestation(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	clientData, attObj := packedSelfAttestation(t, challenge)

	reg, err := rp.VerifyAttestation(challenge, clientData, attObj)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Format != FormatPacked {
		t.Errorf("format = %q, want packed", reg.Format)
	}
}

func TestVerifyPackedSelfAttestationAlgMismatch(t *testing.T) {
	rp := testRP()
	key := mustECDSAKey(t)
	challenge := testChallenge(t)
	authData := attestedAuthData(testRPID, 0x45, 1, [16]byte{}, []byte("cred"), ec2COSEKey(t, &key.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)
	sig := signES256(t, key, signedPayload(authData, clientDataHash))

	// RS256 in the statement against an ES256 credential key.
	attObj := encodeAttestationObject(t, "packed", map[string]any{
		"alg": int(RS256),
		"sig": sig,
	}, authData)

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
	}
}

// packedX5C builds a full packed attestation backed by a minted attestation
// certificate. The template tweak hook lets failure tests bend one property.
func packedX5C(t *testing.T, challenge []byte, aaguid [16]byte, tweak func(*x509.Certificate)) ([]byte, []byte, *x509.Certificate) {
	t.Helper()
	credKey := mustECDSAKey(t)
	attKey := mustECDSAKey(t)

	aaguidDER, err := asn1.Marshal(aaguid[:])
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		Subject: pkix.Name{
			CommonName:         "packed attestation",
			OrganizationalUnit: []string{"Authenticator Attestation"},
		},
		ExtraExtensions: []pkix.Extension{{
			Id:    idFIDOGenCEAAGUID,
			Value: aaguidDER,
		}},
	}
	if tweak != nil {
		tweak(tmpl)
	}
	attCert := selfSignedCert(t, tmpl, &attKey.PublicKey, attKey)

	authData := attestedAuthData(testRPID, 0x45, 1, aaguid, []byte("cred"), ec2COSEKey(t, &credKey.PublicKey))
	clientData := testClientData(t, "webauthn.create", challenge, testOrigin)
	clientDataHash := sha256.Sum256(clientData)
	sig := signES256(t, attKey, signedPayload(authData, clientDataHash))

	attObj := encodeAttestationObject(t, "packed", map[string]any{
		"alg": int(ES256),
		"sig": sig,
		"x5c": [][]byte{attCert.Raw},
	}, authData)
	return clientData, attObj, attCert
}

func TestVerifyPackedX5C(t *testing.T) {
	rp := testRP()
	challenge := testChallenge(t)
	aaguid := [16]byte{1, 2, 3, 4}
	clientData, attObj, _ := packedX5C(t, challenge, aaguid, nil)

	if _, err := rp.VerifyAttestation(challenge, clientData, attObj); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyPackedX5CCertChecks(t *testing.T) {
	challenge := testChallenge(t)
	aaguid := [16]byte{1, 2, 3, 4}

	tests := []struct {
		name  string
		tweak func(*x509.Certificate)
	}{
		{
			name: "wrong organizational unit",
			tweak: func(tmpl *x509.Certificate) {
				tmpl.Subject.OrganizationalUnit = []string{"Something Else"}
			},
		},
		{
			name: "ca certificate",
			tweak: func(tmpl *x509.Certificate) {
				tmpl.IsCA = true
				tmpl.BasicConstraintsValid = true
			},
		},
		{
			name: "aaguid extension mismatch",
			tweak: func(tmpl *x509.Certificate) {
				wrong, err := asn1.Marshal(make([]byte, 16))
				if err != nil {
					t.Fatal(err)
				}
				tmpl.ExtraExtensions[0].Value = wrong
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := testRP()
			clientData, attObj, _ := packedX5C(t, challenge, aaguid, tt.tweak)
			if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
				t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
			}
		})
	}
}

func TestVerifyPackedX5CRootValidation(t *testing.T) {
	challenge := testChallenge(t)
	aaguid := [16]byte{9}
	clientData, attObj, attCert := packedX5C(t, challenge, aaguid, nil)

	t.Run("trusted root", func(t *testing.T) {
		rp := testRP()
		rp.AttestationRoots = x509.NewCertPool()
		rp.AttestationRoots.AddCert(attCert)
		if _, err := rp.VerifyAttestation(challenge, clientData, attObj); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("untrusted root", func(t *testing.T) {
		rp := testRP()
		rp.AttestationRoots = x509.NewCertPool()
		otherKey := mustECDSAKey(t)
		rp.AttestationRoots.AddCert(selfSignedCert(t, &x509.Certificate{
			Subject: pkix.Name{CommonName: "unrelated root"},
			IsCA:    true,
		}, &otherKey.PublicKey, otherKey))
		if _, err := rp.VerifyAttestation(challenge, clientData, attObj); !errors.Is(err, ErrAttestationInvalid) {
			t.Errorf("error = %v, want %v", err, ErrAttestationInvalid)
		}
	})
}
