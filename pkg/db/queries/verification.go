package queries

import (
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
)

// UpsertVerificationCode stores the hashed signup code for an email,
// replacing any earlier code so only the latest one can verify.
func (s *Store) UpsertVerificationCode(email, codeHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO verification_codes (email, code_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET code_hash = $2, expires_at = $3, created_at = NOW()`
	if _, err := s.db.Exec(query, email, codeHash, expiresAt); err != nil {
		log.Errorf("Error storing verification code for '%s': %v", email, err)
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return nil
}

// GetVerificationCode returns (nil, nil) when no code is pending.
func (s *Store) GetVerificationCode(email string) (*db.VerificationCode, error) {
	code := &db.VerificationCode{}
	query := `SELECT email, code_hash, expires_at, created_at FROM verification_codes WHERE email = $1`
	err := s.db.Get(code, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Errorf("Error reading verification code for '%s': %v", email, err)
		return nil, fmt.Errorf("error reading verification code: %w", err)
	}
	return code, nil
}

func (s *Store) DeleteVerificationCode(email string) error {
	if _, err := s.db.Exec(`DELETE FROM verification_codes WHERE email = $1`, email); err != nil {
		log.Errorf("Error deleting verification code for '%s': %v", email, err)
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}

// AddToWaitlist inserts the email, reporting whether it was newly added.
func (s *Store) AddToWaitlist(email string) (bool, error) {
	query := `INSERT INTO waitlist (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`
	result, err := s.db.Exec(query, email)
	if err != nil {
		log.Errorf("Error adding '%s' to waitlist: %v", email, err)
		return false, fmt.Errorf("failed to add to waitlist: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		log.Debugf("Email '%s' already on waitlist.", email)
		return false, nil
	}
	log.Infof("Email '%s' added to waitlist.", email)
	return true, nil
}

// ListWaitlist returns a page of waitlist entries, newest first.
func (s *Store) ListWaitlist(limit, offset int) ([]db.WaitlistEntry, error) {
	var entries []db.WaitlistEntry
	query := `SELECT id, email, created_at FROM waitlist ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := s.db.Select(&entries, query, limit, offset); err != nil {
		log.Errorf("Error listing waitlist: %v", err)
		return nil, fmt.Errorf("error listing waitlist: %w", err)
	}
	return entries, nil
}
