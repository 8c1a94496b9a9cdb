package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID      `db:"id"`            // primary key, auto-generated UUID
	Email        string         `db:"email"`         // unique email
	Username     string         `db:"username"`      // display name
	PasswordHash sql.NullString `db:"password_hash"` // null for Google-only accounts
	GoogleID     sql.NullString `db:"google_id"`     // Google subject claim, null for password accounts
	Credits      int            `db:"credits"`       // remaining ask-doubt credits, never negative
	IsAdmin      bool           `db:"is_admin"`
	IsVerified   bool           `db:"is_verified"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// VerificationCode holds a bcrypt hash of the 6-digit signup code. One row
// per email, replaced on re-signup, deleted on successful verification.
type VerificationCode struct {
	Email     string    `db:"email"`
	CodeHash  string    `db:"code_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type WaitlistEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Video is the audit record written after each successful render.
type Video struct {
	ID        uuid.UUID     `db:"id"`
	UserID    uuid.NullUUID `db:"user_id"` // null for anonymous requests
	Question  string        `db:"question"`
	Filename  string        `db:"filename"`
	VideoURL  string        `db:"video_url"`
	Duration  float64       `db:"duration"`
	CreatedAt time.Time     `db:"created_at"`
}
