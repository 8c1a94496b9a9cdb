package queries

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
)

// CreateUser inserts a new user and returns it with generated fields filled in.
func (s *Store) CreateUser(user *db.User) (*db.User, error) {
	query := `
		INSERT INTO users (email, username, password_hash, google_id, credits, is_admin, is_verified)
		VALUES (:email, :username, :password_hash, :google_id, :credits, :is_admin, :is_verified)
		RETURNING id, created_at, updated_at`

	rows, err := s.db.NamedQuery(query, user)
	if err != nil {
		log.Errorf("Error creating user: %v", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.StructScan(user); err != nil {
			log.Errorf("Error scanning user data after creation: %v", err)
			return nil, fmt.Errorf("error scanning user after creation: %w", err)
		}
	} else {
		log.Error("No rows returned after user creation.")
		return nil, fmt.Errorf("no rows returned after user creation")
	}

	log.Infof("User %s created with ID: %s", user.Email, user.ID.String())
	return user, nil
}

// FindUserByEmail returns (nil, nil) when no user exists for the address.
func (s *Store) FindUserByEmail(email string) (*db.User, error) {
	user := &db.User{}
	query := `SELECT id, email, username, password_hash, google_id, credits, is_admin, is_verified, created_at, updated_at
		FROM users WHERE email = $1`
	err := s.db.Get(user, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debugf("User with email '%s' not found.", email)
			return nil, nil
		}
		log.Errorf("Error finding user by email '%s': %v", email, err)
		return nil, fmt.Errorf("error finding user by email: %w", err)
	}
	return user, nil
}

func (s *Store) FindUserByID(id uuid.UUID) (*db.User, error) {
	user := &db.User{}
	query := `SELECT id, email, username, password_hash, google_id, credits, is_admin, is_verified, created_at, updated_at
		FROM users WHERE id = $1`
	err := s.db.Get(user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debugf("User with ID '%s' not found.", id.String())
			return nil, nil
		}
		log.Errorf("Error finding user by ID '%s': %v", id.String(), err)
		return nil, fmt.Errorf("error finding user by ID: %w", err)
	}
	return user, nil
}

func (s *Store) FindUserByGoogleID(googleID string) (*db.User, error) {
	user := &db.User{}
	query := `SELECT id, email, username, password_hash, google_id, credits, is_admin, is_verified, created_at, updated_at
		FROM users WHERE google_id = $1`
	err := s.db.Get(user, query, googleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Errorf("Error finding user by google ID: %v", err)
		return nil, fmt.Errorf("error finding user by google ID: %w", err)
	}
	return user, nil
}

// UpdateUser rewrites the mutable columns of an existing user row.
func (s *Store) UpdateUser(user *db.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = :email, username = :username, password_hash = :password_hash,
			google_id = :google_id, credits = :credits, is_admin = :is_admin,
			is_verified = :is_verified, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExec(query, user)
	if err != nil {
		log.Errorf("Error updating user with ID '%s': %v", user.ID.String(), err)
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		log.Warnf("No user found with ID '%s' for update.", user.ID.String())
		return sql.ErrNoRows
	}

	log.Infof("User with ID '%s' updated.", user.ID.String())
	return nil
}

func (s *Store) DeleteUser(id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`
	result, err := s.db.Exec(query, id)
	if err != nil {
		log.Errorf("Error deleting user with ID '%s': %v", id.String(), err)
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		log.Warnf("No user found with ID '%s' for deletion.", id.String())
		return sql.ErrNoRows
	}

	log.Infof("User with ID '%s' deleted.", id.String())
	return nil
}

func (s *Store) ListUsers(limit, offset int) ([]db.User, error) {
	var users []db.User
	query := `SELECT id, email, username, password_hash, google_id, credits, is_admin, is_verified, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := s.db.Select(&users, query, limit, offset); err != nil {
		log.Errorf("Error listing users: %v", err)
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

// MarkVerified flips the verification flag after a successful code check.
func (s *Store) MarkVerified(email string) error {
	query := `UPDATE users SET is_verified = TRUE, updated_at = NOW() WHERE email = $1`
	if _, err := s.db.Exec(query, email); err != nil {
		log.Errorf("Error marking user '%s' verified: %v", email, err)
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return nil
}

// SetPassword replaces the stored bcrypt hash for a user.
func (s *Store) SetPassword(id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.db.Exec(query, id, passwordHash)
	if err != nil {
		log.Errorf("Error setting password for user '%s': %v", id.String(), err)
		return fmt.Errorf("failed to set password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetCredits reads the current credit balance.
func (s *Store) GetCredits(id uuid.UUID) (int, error) {
	var credits int
	err := s.db.Get(&credits, `SELECT credits FROM users WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		log.Errorf("Error reading credits for user '%s': %v", id.String(), err)
		return 0, fmt.Errorf("error reading credits: %w", err)
	}
	return credits, nil
}

// UseCredit atomically decrements one credit. The conditional UPDATE refuses
// the decrement at zero, so concurrent requests can never drive the balance
// negative. Returns (false, 0, nil) when no credit was available.
func (s *Store) UseCredit(id uuid.UUID) (bool, int, error) {
	var remaining int
	query := `UPDATE users SET credits = credits - 1, updated_at = NOW()
		WHERE id = $1 AND credits > 0
		RETURNING credits`
	err := s.db.Get(&remaining, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warnf("User '%s' has no credits remaining.", id.String())
			return false, 0, nil
		}
		log.Errorf("Error using credit for user '%s': %v", id.String(), err)
		return false, 0, fmt.Errorf("error using credit: %w", err)
	}
	log.Infof("Credit used for user '%s'. Remaining: %d", id.String(), remaining)
	return true, remaining, nil
}

// AddCredits grants credits and returns the new balance.
func (s *Store) AddCredits(id uuid.UUID, amount int) (int, error) {
	var total int
	query := `UPDATE users SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits`
	err := s.db.Get(&total, query, id, amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, sql.ErrNoRows
		}
		log.Errorf("Error adding credits for user '%s': %v", id.String(), err)
		return 0, fmt.Errorf("error adding credits: %w", err)
	}
	log.Infof("Added %d credits to user '%s'. New total: %d", amount, id.String(), total)
	return total, nil
}
