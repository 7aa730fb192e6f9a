package webauthn

import "fmt"

// verifyNone accepts the "none" attestation conveyance: the statement map
// must be empty, and no cryptographic binding beyond the credential key is
// claimed. This is the common passkey registration path.
//
// https://www.w3.org/TR/webauthn-3/#sctn-none-attestation
func verifyNone(obj *AttestationObject) error {
	if len(obj.Statement.Map) != 0 {
		return fmt.Errorf("%w: none statement must be empty, has %d entries", ErrAttestationInvalid, len(obj.Statement.Map))
	}
	return nil
}
