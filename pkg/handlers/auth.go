package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/middleware"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
	"github.com/askdoubt/manim-tutor-api/pkg/utils"
)

// Verification codes expire after this window.
const verificationCodeTTL = 10 * time.Minute

// --- Request Structs ---

type WaitlistRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"omitempty,min=3,max=30"`
}

type VerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type GoogleSignInRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// --- API Handlers ---

// JoinWaitlist captures an email address, no verification required.
func (h *Handlers) JoinWaitlist(c *gin.Context) {
	var req WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("JoinWaitlist: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	added, err := h.Store.AddToWaitlist(req.Email)
	if err != nil {
		log.Errorf("JoinWaitlist: Failed to add '%s' to waitlist: %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to join waitlist", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Successfully joined the waitlist!", gin.H{
		"email":              req.Email,
		"already_registered": !added,
	})
}

// Signup registers a new account (or refreshes the code for an unverified
// one) and sends a 6-digit verification code. The mailer is a logging stub,
// so the code only ever appears in the database as a bcrypt hash.
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("Signup: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if ok, reason := services.CheckPasswordStrength(req.Password); !ok {
		utils.ResponseWithError(c, http.StatusBadRequest, reason, nil)
		return
	}

	passwordHash, err := services.HashPassword(req.Password)
	if err != nil {
		log.Errorf("Signup: Error hashing password: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
		return
	}

	existing, err := h.Store.FindUserByEmail(req.Email)
	if err != nil {
		log.Errorf("Signup: Error finding user by email '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
		return
	}

	switch {
	case existing != nil && existing.IsVerified:
		log.Debugf("Signup: User with email '%s' already exists.", req.Email)
		utils.ResponseWithError(c, http.StatusConflict, "User with this email already exists", nil)
		return
	case existing != nil:
		// Unverified re-signup keeps the account and replaces the password.
		existing.PasswordHash = sql.NullString{String: passwordHash, Valid: true}
		if req.Username != "" {
			existing.Username = req.Username
		}
		if err := h.Store.UpdateUser(existing); err != nil {
			log.Errorf("Signup: Failed to update unverified user '%s': %v", req.Email, err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
			return
		}
	default:
		username := req.Username
		if username == "" {
			username = usernameFromEmail(req.Email)
		}
		user := &db.User{
			Email:        req.Email,
			Username:     username,
			PasswordHash: sql.NullString{String: passwordHash, Valid: true},
			Credits:      h.Config.DefaultCredits,
		}
		if _, err := h.Store.CreateUser(user); err != nil {
			log.Errorf("Signup: Failed to create user '%s': %v", req.Email, err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
			return
		}
	}

	code, err := services.GenerateVerificationCode()
	if err != nil {
		log.Errorf("Signup: Failed to generate verification code: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
		return
	}
	codeHash, err := services.HashPassword(code)
	if err != nil {
		log.Errorf("Signup: Failed to hash verification code: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
		return
	}
	if err := h.Store.UpsertVerificationCode(req.Email, codeHash, time.Now().Add(verificationCodeTTL)); err != nil {
		log.Errorf("Signup: Failed to store verification code for '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to process signup", nil)
		return
	}

	sendVerificationEmail(req.Email)

	utils.ResponseWithSuccess(c, http.StatusOK, "Verification code sent to your email", nil)
}

// VerifyEmail checks the 6-digit code and returns a token pair on success.
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("VerifyEmail: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	record, err := h.Store.GetVerificationCode(req.Email)
	if err != nil {
		log.Errorf("VerifyEmail: Error reading verification code for '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to verify email", nil)
		return
	}
	if record == nil || time.Now().After(record.ExpiresAt) || !services.VerifyPassword(req.Code, record.CodeHash) {
		log.Debugf("VerifyEmail: Invalid or expired code for '%s'.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid or expired verification code", nil)
		return
	}

	if err := h.Store.MarkVerified(req.Email); err != nil {
		log.Errorf("VerifyEmail: Failed to mark '%s' verified: %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to verify email", nil)
		return
	}
	if err := h.Store.DeleteVerificationCode(req.Email); err != nil {
		log.Warnf("VerifyEmail: Failed to delete used code for '%s': %v", req.Email, err)
	}

	user, err := h.Store.FindUserByEmail(req.Email)
	if err != nil || user == nil {
		log.Errorf("VerifyEmail: User '%s' missing after verification: %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to verify email", nil)
		return
	}

	pair, err := h.JWT.GenerateTokenPair(user)
	if err != nil {
		log.Errorf("VerifyEmail: Failed to generate tokens for '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication tokens", nil)
		return
	}

	log.Infof("User %s verified their email.", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "Email verified successfully", newTokenResponse(pair, user))
}

// LoginUser authenticates with email and password.
func (h *Handlers) LoginUser(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("LoginUser: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.Store.FindUserByEmail(req.Email)
	if err != nil {
		log.Errorf("LoginUser: Error finding user by email: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Login failed", nil)
		return
	}
	// Same message for unknown email, passwordless account, and bad
	// password so the response does not leak which one it was.
	if user == nil || !user.PasswordHash.Valid {
		log.Debugf("LoginUser: User '%s' not found or has no password set.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if !services.VerifyPassword(req.Password, user.PasswordHash.String) {
		log.Debugf("LoginUser: Invalid password for user '%s'.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	pair, err := h.JWT.GenerateTokenPair(user)
	if err != nil {
		log.Errorf("LoginUser: Failed to generate tokens for user %s: %v", user.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication tokens", nil)
		return
	}

	log.Infof("User %s logged in successfully.", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "Logged in successfully", newTokenResponse(pair, user))
}

// GoogleSignIn authenticates with a Google ID token, creating the account on
// first sign-in. Google accounts skip email verification.
func (h *Handlers) GoogleSignIn(c *gin.Context) {
	if h.GoogleAuth == nil {
		utils.ResponseWithError(c, http.StatusServiceUnavailable, "Google sign-in is not configured", nil)
		return
	}

	var req GoogleSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("GoogleSignIn: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	googleUser, err := h.GoogleAuth.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		log.Warnf("GoogleSignIn: Token verification failed: %v", err)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid or expired Google sign-in token", nil)
		return
	}

	user, err := h.findOrCreateGoogleUser(googleUser)
	if err != nil {
		log.Errorf("GoogleSignIn: Failed to resolve user for '%s': %v", googleUser.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Google sign-in failed", nil)
		return
	}

	pair, err := h.JWT.GenerateTokenPair(user)
	if err != nil {
		log.Errorf("GoogleSignIn: Failed to generate tokens for user %s: %v", user.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication tokens", nil)
		return
	}

	log.Infof("User %s signed in with Google.", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "Signed in with Google successfully", newTokenResponse(pair, user))
}

// RefreshToken exchanges a valid refresh token for a new token pair.
func (h *Handlers) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("RefreshToken: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	claims, err := h.JWT.ValidateToken(req.RefreshToken, services.TokenTypeRefresh)
	if err != nil {
		log.Debugf("RefreshToken: Invalid refresh token: %v", err)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid or expired refresh token", nil)
		return
	}

	user, err := h.Store.FindUserByID(claims.UserID)
	if err != nil {
		log.Errorf("RefreshToken: Error finding user %s: %v", claims.UserID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to refresh token", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
		return
	}

	pair, err := h.JWT.GenerateTokenPair(user)
	if err != nil {
		log.Errorf("RefreshToken: Failed to generate tokens for user %s: %v", user.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication tokens", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Token refreshed", newTokenResponse(pair, user))
}

// GetCurrentUser returns the authenticated user's profile.
func (h *Handlers) GetCurrentUser(c *gin.Context) {
	claims, exists := middleware.GetUserClaimsFromContext(c)
	if !exists {
		log.Error("GetCurrentUser: User claims not found in context.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: User claims not found", nil)
		return
	}

	user, err := h.Store.FindUserByID(claims.UserID)
	if err != nil {
		log.Errorf("GetCurrentUser: Error finding user %s: %v", claims.UserID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to load profile", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Profile retrieved successfully", newUserResponse(user))
}

// GetCredits returns the authenticated user's remaining credit balance.
func (h *Handlers) GetCredits(c *gin.Context) {
	claims, exists := middleware.GetUserClaimsFromContext(c)
	if !exists {
		log.Error("GetCredits: User claims not found in context.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: User claims not found", nil)
		return
	}

	credits, err := h.Store.GetCredits(claims.UserID)
	if err != nil {
		log.Errorf("GetCredits: Error reading credits for user %s: %v", claims.UserID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to read credits", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Credits retrieved successfully", gin.H{
		"credits_remaining": credits,
		"user_id":           claims.UserID,
		"email":             claims.Email,
	})
}

// --- Helpers ---

func (h *Handlers) findOrCreateGoogleUser(googleUser *services.GoogleUser) (*db.User, error) {
	user, err := h.Store.FindUserByGoogleID(googleUser.UID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	email := strings.ToLower(googleUser.Email)

	// Link an existing password account with the same address.
	user, err = h.Store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		user.GoogleID = sql.NullString{String: googleUser.UID, Valid: true}
		user.IsVerified = true
		if err := h.Store.UpdateUser(user); err != nil {
			return nil, err
		}
		return user, nil
	}

	username := googleUser.Name
	if username == "" {
		username = usernameFromEmail(email)
	}
	user = &db.User{
		Email:      email,
		Username:   username,
		GoogleID:   sql.NullString{String: googleUser.UID, Valid: true},
		Credits:    h.Config.DefaultCredits,
		IsVerified: true,
	}
	return h.Store.CreateUser(user)
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// sendVerificationEmail is a development stub. It logs that a code was sent
// without exposing the code itself; a real mailer slots in here later.
func sendVerificationEmail(email string) {
	log.Info(strings.Repeat("=", 60))
	log.Infof("VERIFICATION CODE sent to %s", email)
	log.Info(strings.Repeat("=", 60))
}
