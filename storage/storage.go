// Package storage defines the durable records and store contracts the
// authentication flows depend on. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/keyless.space/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrDuplicateCredential indicates an insert collided with an existing
// credential id. Credential ids are unique across all owners.
var ErrDuplicateCredential = errors.New(errors.CodeCredentialDuplicate, "credential already registered")

// ErrChallengeConsumed indicates a consume attempt lost to an earlier one.
var ErrChallengeConsumed = errors.New(errors.CodeChallengeAlreadyUsed, "challenge already consumed")

// Credential is one registered authenticator key.
type Credential struct {
	ID          string
	Owner       string
	DisplayName string

	// CredentialID is the authenticator-generated identifier, globally
	// unique; the lookup key during authentication.
	CredentialID []byte

	// PublicKey is the COSE encoding of the credential key, immutable after
	// creation.
	PublicKey []byte

	// SignCount is the last counter value the authenticator reported. Zero
	// means the authenticator does not track one.
	SignCount uint32

	// AttestationFormat records the format verified at registration.
	AttestationFormat string

	// UserHandle is the user handle sent to the authenticator at creation,
	// echoed back by discoverable credentials.
	UserHandle []byte

	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// CredentialStore persists credentials.
type CredentialStore interface {
	// InsertCredential stores a new credential. It returns
	// ErrDuplicateCredential when the credential id already exists for any
	// owner.
	InsertCredential(ctx context.Context, credential Credential) error
	GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (Credential, error)
	// ListCredentialsByOwner returns the owner's credentials, most recently
	// created first.
	ListCredentialsByOwner(ctx context.Context, owner string) ([]Credential, error)
	// UpdateCredentialUsage records the counter and timestamp of a
	// successful authentication.
	UpdateCredentialUsage(ctx context.Context, id string, signCount uint32, usedAt time.Time) error
	// DeleteCredential removes a credential only when it belongs to owner.
	DeleteCredential(ctx context.Context, id string, owner string) error
}

// Challenge is one in-flight ceremony's anti-replay token.
type Challenge struct {
	ID    string
	Value []byte

	// Purpose is "registration" or "authentication".
	Purpose string

	// Owner is the principal the challenge was issued for; empty for
	// discoverable authentication flows.
	Owner string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// ChallengeStore persists challenges for their short lifetime. Deployments
// with more than one process must back this with shared storage, since the
// begin and complete calls of a ceremony may land on different instances.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, challenge Challenge) error
	// ConsumeChallenge atomically marks the challenge consumed and returns
	// it. Exactly one concurrent caller gets a nil error; replays get the
	// record with ErrChallengeConsumed, and absent ids get ErrNotFound.
	ConsumeChallenge(ctx context.Context, id string, now time.Time) (Challenge, error)
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// RecoveryCode is one single-use fallback code, stored only as a hash.
type RecoveryCode struct {
	ID       string
	Owner    string
	CodeHash []byte
	Used     bool

	CreatedAt time.Time
	UsedAt    *time.Time
}

// RecoveryCodeStore persists recovery codes.
type RecoveryCodeStore interface {
	// ReplaceRecoveryCodes deletes all of the owner's codes and inserts the
	// new batch in one transaction, so old and new codes are never valid
	// together.
	ReplaceRecoveryCodes(ctx context.Context, owner string, codes []RecoveryCode) error
	ListUnusedRecoveryCodes(ctx context.Context, owner string) ([]RecoveryCode, error)
	// MarkRecoveryCodeUsed flips a code to used exactly once. Returns
	// ErrNotFound when the code is absent or already used.
	MarkRecoveryCodeUsed(ctx context.Context, id string, usedAt time.Time) error
	CountUnusedRecoveryCodes(ctx context.Context, owner string) (int, error)
}
