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

// PutChallenge stores a freshly issued challenge.
func (s *Store) PutChallenge(ctx context.Context, challenge storage.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if len(challenge.Value) == 0 {
		return fmt.Errorf("value is required")
	}
	if strings.TrimSpace(challenge.Purpose) == "" {
		return fmt.Errorf("purpose is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO challenges (id, value, purpose, owner, created_at, expires_at, consumed_at)
VALUES (?, ?, ?, ?, ?, ?, NULL)
`,
		challenge.ID,
		challenge.Value,
		challenge.Purpose,
		challenge.Owner,
		toMillis(challenge.CreatedAt),
		toMillis(challenge.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge marks the challenge consumed with a conditional update, so
// exactly one concurrent caller wins the row. The returned record carries the
// state needed for purpose, owner, expiry and replay checks.
func (s *Store) ConsumeChallenge(ctx context.Context, id string, now time.Time) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Challenge{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return storage.Challenge{}, fmt.Errorf("id is required")
	}

	// The UPDATE only wins when the row is still unconsumed; losers fall
	// through to the SELECT and observe ConsumedAt set by the winner.
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE challenges
SET consumed_at = ?
WHERE id = ? AND consumed_at IS NULL
`, toMillis(now), id)
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, value, purpose, owner, created_at, expires_at, consumed_at
FROM challenges
WHERE id = ?
`, id)

	var (
		challenge  storage.Challenge
		createdAt  int64
		expiresAt  int64
		consumedAt sql.NullInt64
	)
	err = row.Scan(
		&challenge.ID,
		&challenge.Value,
		&challenge.Purpose,
		&challenge.Owner,
		&createdAt,
		&expiresAt,
		&consumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	challenge.CreatedAt = fromMillis(createdAt)
	challenge.ExpiresAt = fromMillis(expiresAt)
	if consumedAt.Valid {
		t := fromMillis(consumedAt.Int64)
		challenge.ConsumedAt = &t
	}
	if affected == 0 {
		return challenge, storage.ErrChallengeConsumed
	}
	return challenge, nil
}

// DeleteExpiredChallenges garbage-collects challenges past their TTL.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM challenges WHERE expires_at <= ?
`, toMillis(now))
	if err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}
	return nil
}
