package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// User is the database shape of a user row.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the database shape of a session row.
//
// Metadata is a JSONB column holding client information captured at login
// (user agent, IP). It is nullable: sessions created before the column was
// added carry no metadata.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Metadata  pqtype.NullRawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
}
