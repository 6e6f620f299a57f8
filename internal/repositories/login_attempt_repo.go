package repositories

import (
	"context"
	"time"

	"github.com/brasshelm/birdtext/internal/database"
	"github.com/brasshelm/birdtext/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for the login attempt
// tracking table. One row per (identifier, identifier_type) pair.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// GetActiveLock returns the attempt row for an identifier if it carries a
// lock that has not yet expired. Returns (nil, nil) when no active lock exists.
func (r *LoginAttemptRepository) GetActiveLock(ctx context.Context, identifier, identifierType string) (*models.LoginAttempt, error) {
	query := `
		SELECT identifier, identifier_type, attempt_count, window_start, last_attempt, locked_until
		FROM login_attempts
		WHERE identifier = $1 AND identifier_type = $2 AND locked_until > NOW()
		ORDER BY locked_until DESC
		LIMIT 1
	`

	var attempt models.LoginAttempt
	err := r.db.Pool.QueryRow(ctx, query, identifier, identifierType).Scan(
		&attempt.Identifier,
		&attempt.IdentifierType,
		&attempt.AttemptCount,
		&attempt.WindowStart,
		&attempt.LastAttempt,
		&attempt.LockedUntil,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

// Get returns the attempt row for an identifier, or (nil, nil) if none exists
func (r *LoginAttemptRepository) Get(ctx context.Context, identifier, identifierType string) (*models.LoginAttempt, error) {
	query := `
		SELECT identifier, identifier_type, attempt_count, window_start, last_attempt, locked_until
		FROM login_attempts
		WHERE identifier = $1 AND identifier_type = $2
		LIMIT 1
	`

	var attempt models.LoginAttempt
	err := r.db.Pool.QueryRow(ctx, query, identifier, identifierType).Scan(
		&attempt.Identifier,
		&attempt.IdentifierType,
		&attempt.AttemptCount,
		&attempt.WindowStart,
		&attempt.LastAttempt,
		&attempt.LockedUntil,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

// RecordAttempt records one failed login for an identifier. The insert and
// the increment are a single statement so concurrent failures cannot lose
// updates.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, identifier, identifierType string) error {
	query := `
		INSERT INTO login_attempts (identifier, identifier_type, attempt_count, window_start, last_attempt)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (identifier, identifier_type)
		DO UPDATE SET
			attempt_count = login_attempts.attempt_count + 1,
			last_attempt = NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, identifier, identifierType)
	return err
}

// SetLock stamps a lock expiry on an existing attempt row
func (r *LoginAttemptRepository) SetLock(ctx context.Context, identifier, identifierType string, until time.Time) error {
	query := `
		UPDATE login_attempts
		SET locked_until = $3
		WHERE identifier = $1 AND identifier_type = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, identifier, identifierType, until)
	return err
}

// Delete removes the attempt row for an identifier. No-op if absent.
func (r *LoginAttemptRepository) Delete(ctx context.Context, identifier, identifierType string) error {
	query := `DELETE FROM login_attempts WHERE identifier = $1 AND identifier_type = $2`
	_, err := r.db.Pool.Exec(ctx, query, identifier, identifierType)
	return err
}

// DeleteStale removes rows whose failure window started more than 24 hours
// ago, unless the row still carries an active lock. Returns rows removed.
func (r *LoginAttemptRepository) DeleteStale(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE window_start < NOW() - INTERVAL '24 hours'
		AND (locked_until IS NULL OR locked_until < NOW())
	`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
