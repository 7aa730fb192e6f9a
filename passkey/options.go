package passkey

import "encoding/base64"

// Binary fields in browser-facing payloads use unpadded base64url, the
// encoding the WebAuthn browser APIs exchange exclusively.
var credentialIDEncoding = base64.RawURLEncoding

// EncodeCredentialID renders a raw credential id for a browser payload.
func EncodeCredentialID(raw []byte) string {
	return credentialIDEncoding.EncodeToString(raw)
}

// DecodeCredentialID parses a browser-supplied credential id.
func DecodeCredentialID(s string) ([]byte, error) {
	return credentialIDEncoding.DecodeString(s)
}

// RPEntity identifies the relying party in creation options.
type RPEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserEntity identifies the registering user in creation options.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParam advertises an acceptable credential algorithm.
type CredentialParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialDescriptor references an existing credential in exclude or allow
// lists.
type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RegistrationOptions is the payload a caller forwards to
// navigator.credentials.create, plus the server-side challenge id the client
// must echo back to complete the ceremony.
type RegistrationOptions struct {
	ChallengeID string `json:"challengeId"`

	RP                 RPEntity               `json:"rp"`
	User               UserEntity             `json:"user"`
	Challenge          string                 `json:"challenge"`
	PubKeyCredParams   []CredentialParam      `json:"pubKeyCredParams"`
	Timeout            int64                  `json:"timeout"`
	ExcludeCredentials []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	Attestation        string                 `json:"attestation"`
}

// AuthenticationOptions is the payload a caller forwards to
// navigator.credentials.get. An empty allow list starts a discoverable
// credential flow.
type AuthenticationOptions struct {
	ChallengeID string `json:"challengeId"`

	Challenge        string                 `json:"challenge"`
	RPID             string                 `json:"rpId"`
	Timeout          int64                  `json:"timeout"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification"`
}
