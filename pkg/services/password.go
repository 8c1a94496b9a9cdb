package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// HashPassword hashes a plain text password with bcrypt. The same helper
// hashes verification codes, which are short-lived and single-use.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether the plain text matches the stored hash.
func VerifyPassword(password, hashed string) bool {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		if err != bcrypt.ErrMismatchedHashAndPassword {
			log.Errorf("Password verification error: %v", err)
		}
		return false
	}
	return true
}

// CheckPasswordStrength enforces the minimum requirements: at least 8
// characters with a lowercase letter, an uppercase letter, and a digit.
func CheckPasswordStrength(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	var hasLower, hasUpper, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	if !hasLower {
		return false, "Password must include a lowercase letter"
	}
	if !hasUpper {
		return false, "Password must include an uppercase letter"
	}
	if !hasDigit {
		return false, "Password must include a number"
	}
	return true, ""
}

// GenerateVerificationCode returns a random 6-digit code.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
