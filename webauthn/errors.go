package webauthn

import "github.com/louisbranch/keyless.space/internal/platform/errors"

// Error kinds surfaced by the protocol engine. Callers match with errors.Is;
// detail is carried in the wrapping message.
var (
	ErrTruncatedInput           = errors.New(errors.CodeTruncatedInput, "input shorter than declared structure")
	ErrMalformedCBOR            = errors.New(errors.CodeMalformedCBOR, "malformed cbor payload")
	ErrInvalidAuthenticatorData = errors.New(errors.CodeInvalidAuthenticatorData, "invalid authenticator data")
	ErrInvalidClientData        = errors.New(errors.CodeInvalidClientData, "invalid client data")
	ErrChallengeMismatch        = errors.New(errors.CodeChallengeMismatch, "client data challenge does not match ceremony")
	ErrUnknownAttestationFormat = errors.New(errors.CodeUnknownAttestationFormat, "unknown attestation format")
	ErrAttestationInvalid       = errors.New(errors.CodeAttestationInvalid, "attestation statement rejected")
	ErrSignatureInvalid         = errors.New(errors.CodeSignatureInvalid, "signature verification failed")
)
