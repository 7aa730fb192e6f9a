// Package passkey orchestrates WebAuthn registration and authentication
// ceremonies: challenge lifecycle, protocol verification, and credential
// persistence. It is the API surface hosting applications call; transport
// and session establishment stay with the caller.
package passkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/keyless.space/challenge"
	apperrors "github.com/louisbranch/keyless.space/internal/platform/errors"
	"github.com/louisbranch/keyless.space/internal/platform/id"
	"github.com/louisbranch/keyless.space/storage"
	"github.com/louisbranch/keyless.space/webauthn"
)

// Authentication failures that must stay indistinguishable to end users.
// The codes differ for diagnostics; user-facing text must not.
var (
	ErrCredentialNotFound  = apperrors.New(apperrors.CodeCredentialNotFound, "credential not registered")
	ErrClonedAuthenticator = apperrors.New(apperrors.CodePossibleClonedAuthenticator, "sign counter regressed past tolerance")
)

// Service drives passkey ceremonies over caller-supplied stores.
type Service struct {
	cfg         Config
	rp          *webauthn.RelyingParty
	credentials storage.CredentialStore
	challenges  *challenge.Manager

	now   func() time.Time
	newID func() (string, error)
}

// NewService wires a passkey service. The challenge store must be shared
// across instances in multi-process deployments.
func NewService(cfg Config, credentials storage.CredentialStore, challenges storage.ChallengeStore) *Service {
	return &Service{
		cfg: cfg,
		rp: &webauthn.RelyingParty{
			ID:     cfg.RPID,
			Origin: cfg.RPOrigin,
		},
		credentials: credentials,
		challenges:  challenge.NewManager(challenges, cfg.ChallengeTTL),
		now:         time.Now,
		newID:       id.NewID,
	}
}

// supportedParams lists the algorithms advertised at registration, strongest
// preference first.
var supportedParams = []CredentialParam{
	{Type: "public-key", Alg: int(webauthn.ES256)},
	{Type: "public-key", Alg: int(webauthn.EdDSA)},
	{Type: "public-key", Alg: int(webauthn.RS256)},
}

// BeginRegistration issues a registration challenge for the owner and builds
// the browser-facing creation options, excluding already-registered
// credentials so the authenticator refuses to re-register.
func (s *Service) BeginRegistration(ctx context.Context, owner, displayName string) (*RegistrationOptions, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}

	existing, err := s.credentials.ListCredentialsByOwner(ctx, owner)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	exclude := make([]CredentialDescriptor, 0, len(existing))
	for _, credential := range existing {
		exclude = append(exclude, CredentialDescriptor{
			Type: "public-key",
			ID:   EncodeCredentialID(credential.CredentialID),
		})
	}

	issued, err := s.challenges.Issue(ctx, challenge.PurposeRegistration, owner)
	if err != nil {
		return nil, err
	}

	return &RegistrationOptions{
		ChallengeID: issued.ID,
		RP: RPEntity{
			ID:   s.cfg.RPID,
			Name: s.cfg.RPDisplayName,
		},
		User: UserEntity{
			ID:          credentialIDEncoding.EncodeToString([]byte(owner)),
			Name:        owner,
			DisplayName: displayName,
		},
		Challenge:          credentialIDEncoding.EncodeToString(issued.Value),
		PubKeyCredParams:   supportedParams,
		Timeout:            s.challenges.TTL().Milliseconds(),
		ExcludeCredentials: exclude,
		Attestation:        "direct",
	}, nil
}

// FinishRegistrationRequest carries the client's creation response.
type FinishRegistrationRequest struct {
	Owner       string
	ChallengeID string
	DisplayName string

	ClientDataJSON    []byte
	AttestationObject []byte
}

// FinishRegistration consumes the ceremony's challenge, verifies the
// attestation and persists the credential. The challenge is spent on entry,
// so a failed ceremony cannot be retried with the same challenge.
func (s *Service) FinishRegistration(ctx context.Context, req FinishRegistrationRequest) (storage.Credential, error) {
	if err := s.ready(); err != nil {
		return storage.Credential{}, err
	}
	if strings.TrimSpace(req.Owner) == "" {
		return storage.Credential{}, fmt.Errorf("owner is required")
	}

	record, err := s.challenges.VerifyAndConsume(ctx, req.ChallengeID, challenge.PurposeRegistration, req.Owner)
	if err != nil {
		return storage.Credential{}, err
	}

	registration, err := s.rp.VerifyAttestation(record.Value, req.ClientDataJSON, req.AttestationObject)
	if err != nil {
		return storage.Credential{}, err
	}

	credentialID, err := s.newID()
	if err != nil {
		return storage.Credential{}, fmt.Errorf("generate credential id: %w", err)
	}
	credential := storage.Credential{
		ID:                credentialID,
		Owner:             req.Owner,
		DisplayName:       req.DisplayName,
		CredentialID:      registration.CredentialID,
		PublicKey:         registration.PublicKeyBytes,
		SignCount:         registration.SignCount,
		AttestationFormat: string(registration.Format),
		UserHandle:        []byte(req.Owner),
		CreatedAt:         s.now(),
	}
	if err := s.credentials.InsertCredential(ctx, credential); err != nil {
		if errors.Is(err, storage.ErrDuplicateCredential) {
			return storage.Credential{}, storage.ErrDuplicateCredential
		}
		return storage.Credential{}, fmt.Errorf("store credential: %w", err)
	}
	return credential, nil
}

// BeginAuthentication issues an authentication challenge. With an owner, the
// allow list names that owner's credentials; without one, the list is empty
// and the browser runs a discoverable credential flow.
func (s *Service) BeginAuthentication(ctx context.Context, owner string) (*AuthenticationOptions, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var allow []CredentialDescriptor
	if owner != "" {
		existing, err := s.credentials.ListCredentialsByOwner(ctx, owner)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		allow = make([]CredentialDescriptor, 0, len(existing))
		for _, credential := range existing {
			allow = append(allow, CredentialDescriptor{
				Type: "public-key",
				ID:   EncodeCredentialID(credential.CredentialID),
			})
		}
	}

	issued, err := s.challenges.Issue(ctx, challenge.PurposeAuthentication, owner)
	if err != nil {
		return nil, err
	}

	return &AuthenticationOptions{
		ChallengeID:      issued.ID,
		Challenge:        credentialIDEncoding.EncodeToString(issued.Value),
		RPID:             s.cfg.RPID,
		Timeout:          s.challenges.TTL().Milliseconds(),
		AllowCredentials: allow,
		UserVerification: "preferred",
	}, nil
}

// FinishAuthenticationRequest carries the client's assertion response.
type FinishAuthenticationRequest struct {
	ChallengeID string

	// CredentialID is the base64url id reported by the browser.
	CredentialID string

	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

// FinishAuthentication verifies an assertion end to end and returns the
// authenticated principal. Session establishment is the caller's job.
func (s *Service) FinishAuthentication(ctx context.Context, req FinishAuthenticationRequest) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	rawCredentialID, err := DecodeCredentialID(req.CredentialID)
	if err != nil || len(rawCredentialID) == 0 {
		return "", ErrCredentialNotFound
	}
	credential, err := s.credentials.GetCredentialByCredentialID(ctx, rawCredentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrCredentialNotFound
		}
		return "", fmt.Errorf("lookup credential: %w", err)
	}

	record, err := s.challenges.VerifyAndConsume(ctx, req.ChallengeID, challenge.PurposeAuthentication, credential.Owner)
	if err != nil {
		return "", err
	}

	pub, alg, err := webauthn.ParseCredentialKey(credential.PublicKey)
	if err != nil {
		return "", fmt.Errorf("stored credential key: %w", err)
	}
	assertion, err := s.rp.VerifyAssertion(pub, alg, record.Value, req.ClientDataJSON, req.AuthenticatorData, req.Signature)
	if err != nil {
		return "", err
	}

	if err := s.applySignCountPolicy(ctx, credential, assertion.SignCount); err != nil {
		return "", err
	}
	return credential.Owner, nil
}

// applySignCountPolicy enforces the lenient anti-clone heuristic: platform
// authenticators with non-incrementing counters are tolerated up to the
// configured regression, and only larger regressions are treated as a cloned
// key. On acceptance the stored counter tracks the reported value and the
// usage timestamp advances.
func (s *Service) applySignCountPolicy(ctx context.Context, credential storage.Credential, reported uint32) error {
	stored := credential.SignCount
	if reported > 0 && stored > 0 && reported <= stored && stored-reported > s.cfg.SignCountTolerance {
		return ErrClonedAuthenticator
	}
	if err := s.credentials.UpdateCredentialUsage(ctx, credential.ID, reported, s.now()); err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	return nil
}

// Credentials lists the owner's registered credentials, newest first.
func (s *Service) Credentials(ctx context.Context, owner string) ([]storage.Credential, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}
	return s.credentials.ListCredentialsByOwner(ctx, owner)
}

// DeleteCredential removes one of the owner's credentials. The owner scope
// is enforced by the store, so a caller cannot delete another principal's
// keys by id.
func (s *Service) DeleteCredential(ctx context.Context, owner, credentialID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	return s.credentials.DeleteCredential(ctx, credentialID, owner)
}

// DeleteExpiredChallenges garbage-collects stale ceremony state. Callers run
// it periodically.
func (s *Service) DeleteExpiredChallenges(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.challenges.DeleteExpired(ctx)
}

func (s *Service) ready() error {
	if s == nil || s.credentials == nil || s.challenges == nil {
		return fmt.Errorf("passkey service is not configured")
	}
	return nil
}
