// Package errors provides structured error handling for the relying party.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Parse-layer errors
	CodeTruncatedInput           Code = "WEBAUTHN_TRUNCATED_INPUT"
	CodeMalformedCBOR            Code = "WEBAUTHN_MALFORMED_CBOR"
	CodeInvalidAuthenticatorData Code = "WEBAUTHN_INVALID_AUTHENTICATOR_DATA"
	CodeInvalidClientData        Code = "WEBAUTHN_INVALID_CLIENT_DATA"

	// Attestation errors
	CodeUnknownAttestationFormat Code = "WEBAUTHN_UNKNOWN_ATTESTATION_FORMAT"
	CodeAttestationInvalid       Code = "WEBAUTHN_ATTESTATION_INVALID"

	// Challenge errors
	CodeChallengeNotFound        Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeAlreadyUsed     Code = "CHALLENGE_ALREADY_USED"
	CodeChallengePurposeMismatch Code = "CHALLENGE_PURPOSE_MISMATCH"
	CodeChallengeOwnerMismatch   Code = "CHALLENGE_OWNER_MISMATCH"
	CodeChallengeMismatch        Code = "CHALLENGE_MISMATCH"

	// Credential errors
	CodeCredentialNotFound          Code = "CREDENTIAL_NOT_FOUND"
	CodeCredentialDuplicate         Code = "CREDENTIAL_DUPLICATE"
	CodeSignatureInvalid            Code = "SIGNATURE_INVALID"
	CodePossibleClonedAuthenticator Code = "POSSIBLE_CLONED_AUTHENTICATOR"

	// Recovery code errors
	CodeRecoveryCodeInvalid Code = "RECOVERY_CODE_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - malformed or rejected client payloads
	case CodeTruncatedInput,
		CodeMalformedCBOR,
		CodeInvalidAuthenticatorData,
		CodeInvalidClientData,
		CodeUnknownAttestationFormat,
		CodeChallengeMismatch:
		return codes.InvalidArgument

	// FailedPrecondition - ceremony state doesn't allow the operation
	case CodeChallengeAlreadyUsed,
		CodeChallengePurposeMismatch,
		CodeChallengeOwnerMismatch:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeChallengeNotFound:
		return codes.NotFound

	// AlreadyExists - uniqueness violations
	case CodeCredentialDuplicate:
		return codes.AlreadyExists

	// Unauthenticated - verification failures; callers must surface these
	// with a single generic message to prevent credential enumeration
	case CodeCredentialNotFound,
		CodeSignatureInvalid,
		CodeAttestationInvalid,
		CodePossibleClonedAuthenticator,
		CodeRecoveryCodeInvalid:
		return codes.Unauthenticated

	default:
		return codes.Internal
	}
}
