package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/keyless.space/storage"
)

// InsertCredential stores a new credential, surfacing unique-constraint
// violations on the credential id as ErrDuplicateCredential.
func (s *Store) InsertCredential(ctx context.Context, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(credential.Owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if len(credential.CredentialID) == 0 {
		return fmt.Errorf("credential id is required")
	}
	if len(credential.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}

	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO credentials (id, owner, display_name, credential_id, public_key, sign_count, attestation_format, user_handle, created_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		credential.ID,
		credential.Owner,
		credential.DisplayName,
		credential.CredentialID,
		credential.PublicKey,
		int64(credential.SignCount),
		credential.AttestationFormat,
		credential.UserHandle,
		toMillis(credential.CreatedAt),
		lastUsed,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetCredentialByCredentialID fetches a credential by its authenticator id.
func (s *Store) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Credential{}, fmt.Errorf("storage is not configured")
	}
	if len(credentialID) == 0 {
		return storage.Credential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner, display_name, credential_id, public_key, sign_count, attestation_format, user_handle, created_at, last_used_at
FROM credentials
WHERE credential_id = ?
`, credentialID)
	return scanCredential(row)
}

// ListCredentialsByOwner returns the owner's credentials, newest first.
func (s *Store) ListCredentialsByOwner(ctx context.Context, owner string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, owner, display_name, credential_id, public_key, sign_count, attestation_format, user_handle, created_at, last_used_at
FROM credentials
WHERE owner = ?
ORDER BY created_at DESC, id
`, owner)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []storage.Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredentialUsage records the reported counter and usage timestamp
// after a successful authentication.
func (s *Store) UpdateCredentialUsage(ctx context.Context, id string, signCount uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE credentials
SET sign_count = ?, last_used_at = ?
WHERE id = ?
`, int64(signCount), toMillis(usedAt), id)
	if err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCredential removes a credential scoped to its owner, so one
// principal cannot delete another's keys.
func (s *Store) DeleteCredential(ctx context.Context, id string, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM credentials WHERE id = ? AND owner = ?
`, id, owner)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (storage.Credential, error) {
	var (
		credential storage.Credential
		signCount  int64
		createdAt  int64
		lastUsed   sql.NullInt64
	)
	err := row.Scan(
		&credential.ID,
		&credential.Owner,
		&credential.DisplayName,
		&credential.CredentialID,
		&credential.PublicKey,
		&signCount,
		&credential.AttestationFormat,
		&credential.UserHandle,
		&createdAt,
		&lastUsed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Credential{}, storage.ErrNotFound
		}
		return storage.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	credential.SignCount = uint32(signCount)
	credential.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		usedAt := fromMillis(lastUsed.Int64)
		credential.LastUsedAt = &usedAt
	}
	return credential, nil
}

// isUniqueConstraintError detects SQLite unique-constraint violations.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
