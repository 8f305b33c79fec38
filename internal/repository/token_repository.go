package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates supervisor refresh tokens (single
// 'token_hash' column; only the SHA-256 of the raw token is stored).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, supervisorID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (supervisor_id, token_hash, expires_at) VALUES (?,?,?)",
		supervisorID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the supervisor ID if a non-revoked,
// non-expired token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		supervisorID uint64
		expiresAt    time.Time
		revokedAt    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT supervisor_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&supervisorID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid {
		return 0, sql.ErrNoRows
	}
	if time.Now().UTC().After(expiresAt) {
		return 0, sql.ErrNoRows
	}
	return supervisorID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForSupervisor revokes all of a supervisor's active tokens.
func (r *TokenRepo) RevokeAllForSupervisor(ctx context.Context, supervisorID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE supervisor_id=? AND revoked_at IS NULL",
		supervisorID)
	return err
}
