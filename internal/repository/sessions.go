package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createSession = `
INSERT INTO sessions (user_id, token_hash, metadata, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, token_hash, metadata, expires_at, created_at
`

// CreateSessionParams holds the parameters for CreateSession.
type CreateSessionParams struct {
	UserID    uuid.UUID
	TokenHash string
	Metadata  pqtype.NullRawMessage
	ExpiresAt time.Time
}

// CreateSession inserts a new session row and returns it.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.UserID,
		arg.TokenHash,
		arg.Metadata,
		arg.ExpiresAt,
	)
	var s Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.Metadata,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	return s, err
}

const getSessionByTokenHash = `
SELECT id, user_id, token_hash, metadata, expires_at, created_at
FROM sessions
WHERE token_hash = $1
`

// GetSessionByTokenHash returns the session with the given token hash.
// Returns sql.ErrNoRows if no such session exists. Expiry is not checked
// here; the service layer decides what to do with expired rows.
func (q *Queries) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSessionByTokenHash, tokenHash)
	var s Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.Metadata,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	return s, err
}

const listSessionsByUserID = `
SELECT id, user_id, token_hash, metadata, expires_at, created_at
FROM sessions
WHERE user_id = $1 AND expires_at > now()
ORDER BY created_at DESC
`

// ListSessionsByUserID returns all unexpired sessions for a user, newest first.
func (q *Queries) ListSessionsByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessionsByUserID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.TokenHash,
			&s.Metadata,
			&s.ExpiresAt,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const deleteSession = `
DELETE FROM sessions
WHERE token_hash = $1
`

// DeleteSession removes the session with the given token hash.
func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, tokenHash)
	return err
}

const deleteSessionsByUserID = `
DELETE FROM sessions
WHERE user_id = $1
`

// DeleteSessionsByUserID removes all sessions for a user.
// Used when a password changes to invalidate every device.
func (q *Queries) DeleteSessionsByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteSessionsByUserID, userID)
	return err
}

const deleteExpiredSessions = `
DELETE FROM sessions
WHERE expires_at < now()
`

// DeleteExpiredSessions removes all expired sessions and reports how many
// rows were deleted.
func (q *Queries) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredSessions)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
