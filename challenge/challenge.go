// Package challenge issues and consumes the single-use random values that
// anchor WebAuthn ceremonies. The manager is stateless logic over a caller
// supplied store; consumption is atomic there, so replayed or concurrent
// completions of one ceremony succeed at most once.
package challenge

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/keyless.space/internal/platform/errors"
	"github.com/louisbranch/keyless.space/internal/platform/id"
	"github.com/louisbranch/keyless.space/storage"
)

// Purpose binds a challenge to the ceremony it was issued for.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

const (
	// ValueSize is the challenge entropy in bytes. The WebAuthn spec asks
	// for at least 16; 32 matches what browsers commonly receive.
	ValueSize = 32

	// DefaultTTL bounds how long a user has to complete the authenticator
	// interaction.
	DefaultTTL = 5 * time.Minute
)

// Verification failures, one per terminal state of a challenge.
var (
	// ErrNotFound covers both absent and expired challenges; callers cannot
	// tell the two apart.
	ErrNotFound        = apperrors.New(apperrors.CodeChallengeNotFound, "challenge not found or expired")
	ErrAlreadyUsed     = apperrors.New(apperrors.CodeChallengeAlreadyUsed, "challenge already used")
	ErrPurposeMismatch = apperrors.New(apperrors.CodeChallengePurposeMismatch, "challenge issued for a different ceremony")
	ErrOwnerMismatch   = apperrors.New(apperrors.CodeChallengeOwnerMismatch, "challenge issued for a different principal")
)

// Manager drives the challenge lifecycle: issued, then consumed exactly once
// or expired.
type Manager struct {
	store storage.ChallengeStore
	ttl   time.Duration

	// Test seams.
	now   func() time.Time
	newID func() (string, error)
}

// NewManager wires a manager over a challenge store. A non-positive ttl
// falls back to DefaultTTL.
func NewManager(store storage.ChallengeStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		newID: id.NewID,
	}
}

// Issue generates a random challenge bound to a purpose and, optionally, to
// the principal the ceremony was started for. The challenge is addressed by
// a server-generated opaque id, never by caller-supplied keys.
func (m *Manager) Issue(ctx context.Context, purpose Purpose, owner string) (storage.Challenge, error) {
	if m == nil || m.store == nil {
		return storage.Challenge{}, fmt.Errorf("challenge store is not configured")
	}
	if purpose != PurposeRegistration && purpose != PurposeAuthentication {
		return storage.Challenge{}, fmt.Errorf("unknown challenge purpose %q", purpose)
	}

	value := make([]byte, ValueSize)
	if _, err := rand.Read(value); err != nil {
		return storage.Challenge{}, fmt.Errorf("generate challenge value: %w", err)
	}
	challengeID, err := m.newID()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}

	now := m.now()
	record := storage.Challenge{
		ID:        challengeID,
		Value:     value,
		Purpose:   string(purpose),
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.PutChallenge(ctx, record); err != nil {
		return storage.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return record, nil
}

// VerifyAndConsume atomically consumes the challenge and then checks its
// bindings. Consumption happens before any check, so a ceremony gets one
// attempt per issued challenge, successful or not. The returned record
// carries the random value for the caller's client-data comparison.
func (m *Manager) VerifyAndConsume(ctx context.Context, challengeID string, purpose Purpose, owner string) (storage.Challenge, error) {
	if m == nil || m.store == nil {
		return storage.Challenge{}, fmt.Errorf("challenge store is not configured")
	}

	now := m.now()
	record, err := m.store.ConsumeChallenge(ctx, challengeID, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrChallengeConsumed):
			return storage.Challenge{}, ErrAlreadyUsed
		case errors.Is(err, storage.ErrNotFound):
			return storage.Challenge{}, ErrNotFound
		default:
			return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
		}
	}

	if !record.ExpiresAt.After(now) {
		return storage.Challenge{}, ErrNotFound
	}
	if record.Purpose != string(purpose) {
		return storage.Challenge{}, ErrPurposeMismatch
	}
	if record.Owner != "" && record.Owner != owner {
		return storage.Challenge{}, ErrOwnerMismatch
	}
	return record, nil
}

// TTL reports how long issued challenges stay valid.
func (m *Manager) TTL() time.Duration {
	if m == nil {
		return 0
	}
	return m.ttl
}

// DeleteExpired garbage-collects challenges past their TTL, consumed or not.
func (m *Manager) DeleteExpired(ctx context.Context) error {
	if m == nil || m.store == nil {
		return fmt.Errorf("challenge store is not configured")
	}
	return m.store.DeleteExpiredChallenges(ctx, m.now())
}
