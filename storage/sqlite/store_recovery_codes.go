package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/keyless.space/storage"
)

// ReplaceRecoveryCodes swaps the owner's whole batch inside one transaction,
// so readers never observe a mix of old and new codes.
func (s *Store) ReplaceRecoveryCodes(ctx context.Context, owner string, codes []storage.RecoveryCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	for _, code := range codes {
		if strings.TrimSpace(code.ID) == "" {
			return fmt.Errorf("code id is required")
		}
		if code.Owner != owner {
			return fmt.Errorf("code owner %q does not match %q", code.Owner, owner)
		}
		if len(code.CodeHash) == 0 {
			return fmt.Errorf("code hash is required")
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace recovery codes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_codes WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("delete prior recovery codes: %w", err)
	}
	for _, code := range codes {
		_, err := tx.ExecContext(ctx, `
INSERT INTO recovery_codes (id, owner, code_hash, used, created_at, used_at)
VALUES (?, ?, ?, 0, ?, NULL)
`, code.ID, code.Owner, code.CodeHash, toMillis(code.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace recovery codes: %w", err)
	}
	return nil
}

// ListUnusedRecoveryCodes returns the owner's unspent codes.
func (s *Store) ListUnusedRecoveryCodes(ctx context.Context, owner string) ([]storage.RecoveryCode, error) {
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
SELECT id, owner, code_hash, created_at
FROM recovery_codes
WHERE owner = ? AND used = 0
ORDER BY created_at, id
`, owner)
	if err != nil {
		return nil, fmt.Errorf("list recovery codes: %w", err)
	}
	defer rows.Close()

	var codes []storage.RecoveryCode
	for rows.Next() {
		var (
			code      storage.RecoveryCode
			createdAt int64
		)
		if err := rows.Scan(&code.ID, &code.Owner, &code.CodeHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recovery code: %w", err)
		}
		code.CreatedAt = fromMillis(createdAt)
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recovery codes: %w", err)
	}
	return codes, nil
}

// MarkRecoveryCodeUsed flips a code to used with a conditional update, so a
// code spends at most once even under concurrent verification.
func (s *Store) MarkRecoveryCodeUsed(ctx context.Context, id string, usedAt time.Time) error {
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
UPDATE recovery_codes
SET used = 1, used_at = ?
WHERE id = ? AND used = 0
`, toMillis(usedAt), id)
	if err != nil {
		return fmt.Errorf("mark recovery code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark recovery code used: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountUnusedRecoveryCodes reports how many codes the owner has left.
func (s *Store) CountUnusedRecoveryCodes(ctx context.Context, owner string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(owner) == "" {
		return 0, fmt.Errorf("owner is required")
	}

	var count int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM recovery_codes WHERE owner = ? AND used = 0
`, owner).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recovery codes: %w", err)
	}
	return count, nil
}
