// Package recovery implements single-use fallback codes for accounts whose
// authenticators are lost. Plaintext codes exist only in the Generate
// response; storage holds bcrypt hashes.
package recovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/keyless.space/internal/platform/errors"
	"github.com/louisbranch/keyless.space/internal/platform/id"
	"github.com/louisbranch/keyless.space/storage"
)

// BatchSize is the number of codes issued per generation.
const BatchSize = 10

// ErrInvalidCode is returned for any code that does not verify, whether it
// never existed or was already spent; callers cannot tell the two apart.
var ErrInvalidCode = apperrors.New(apperrors.CodeRecoveryCodeInvalid, "recovery code invalid")

// Service generates and verifies recovery codes over a caller-supplied store.
type Service struct {
	store storage.RecoveryCodeStore

	// cost is the bcrypt work factor. Tests lower it; zero means
	// bcrypt.DefaultCost.
	cost int

	now   func() time.Time
	newID func() (string, error)
}

// NewService wires a recovery-code service over a store.
func NewService(store storage.RecoveryCodeStore) *Service {
	return &Service{
		store: store,
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
		newID: id.NewID,
	}
}

// Generate replaces the owner's entire batch with fresh codes and returns
// the plaintexts exactly once. Any previously issued codes stop verifying,
// so there is never a mix of old and new valid codes.
func (s *Service) Generate(ctx context.Context, owner string) ([]string, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("recovery code store is not configured")
	}
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}

	now := s.now()
	plaintexts := make([]string, 0, BatchSize)
	records := make([]storage.RecoveryCode, 0, BatchSize)
	for i := 0; i < BatchSize; i++ {
		code, err := newCode()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash recovery code: %w", err)
		}
		codeID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code id: %w", err)
		}
		plaintexts = append(plaintexts, code)
		records = append(records, storage.RecoveryCode{
			ID:        codeID,
			Owner:     owner,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}

	if err := s.store.ReplaceRecoveryCodes(ctx, owner, records); err != nil {
		return nil, fmt.Errorf("store recovery codes: %w", err)
	}
	return plaintexts, nil
}

// VerifyAndConsume checks a submitted code against the owner's unused codes
// and spends the first match. A code verifies at most once.
func (s *Service) VerifyAndConsume(ctx context.Context, owner, code string) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("recovery code store is not configured")
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if code == "" {
		return ErrInvalidCode
	}

	unused, err := s.store.ListUnusedRecoveryCodes(ctx, owner)
	if err != nil {
		return fmt.Errorf("list recovery codes: %w", err)
	}

	for _, record := range unused {
		if bcrypt.CompareHashAndPassword(record.CodeHash, []byte(code)) != nil {
			continue
		}
		if err := s.store.MarkRecoveryCodeUsed(ctx, record.ID, s.now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Lost a race with a concurrent spend of the same code.
				return ErrInvalidCode
			}
			return fmt.Errorf("mark recovery code used: %w", err)
		}
		return nil
	}
	return ErrInvalidCode
}

// Remaining reports how many unused codes the owner has.
func (s *Service) Remaining(ctx context.Context, owner string) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("recovery code store is not configured")
	}
	return s.store.CountUnusedRecoveryCodes(ctx, owner)
}

// HasAny reports whether the owner holds at least one unused code.
func (s *Service) HasAny(ctx context.Context, owner string) (bool, error) {
	count, err := s.Remaining(ctx, owner)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// newCode builds a XXXX-XXXX-XXXX code: three segments of four uppercase hex
// characters, two CSPRNG bytes each.
func newCode() (string, error) {
	segments := make([]string, 3)
	for i := range segments {
		var b [2]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", err
		}
		segments[i] = strings.ToUpper(hex.EncodeToString(b[:]))
	}
	return strings.Join(segments, "-"), nil
}
