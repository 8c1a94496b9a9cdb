package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/middleware"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
	"github.com/askdoubt/manim-tutor-api/pkg/utils"
)

// --- Request Structs ---

type AdminCreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"omitempty,min=3,max=30"`
	Credits  *int   `json:"credits" binding:"omitempty,min=0"`
	IsAdmin  bool   `json:"is_admin"`
}

type AdminUpdateUserRequest struct {
	Username   *string `json:"username" binding:"omitempty,min=3,max=30"`
	Credits    *int    `json:"credits" binding:"omitempty,min=0"`
	IsAdmin    *bool   `json:"is_admin"`
	IsVerified *bool   `json:"is_verified"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type AddCreditsRequest struct {
	Amount int `json:"amount" binding:"required,min=1"`
}

// --- API Handlers ---

// GetStats returns the aggregate numbers for the admin dashboard.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.Store.GetStats()
	if err != nil {
		log.Errorf("GetStats: Failed to aggregate stats: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve statistics", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Statistics retrieved successfully", stats)
}

// ListUsers returns a page of users, newest first.
func (h *Handlers) ListUsers(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	users, err := h.Store.ListUsers(limit, offset)
	if err != nil {
		log.Errorf("ListUsers: Failed to list users: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to list users", nil)
		return
	}

	responses := make([]UserResponse, len(users))
	for i := range users {
		responses[i] = newUserResponse(&users[i])
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Users retrieved successfully", gin.H{
		"users":  responses,
		"count":  len(responses),
		"limit":  limit,
		"offset": offset,
	})
}

// ListWaitlist returns a page of waitlist signups, newest first.
func (h *Handlers) ListWaitlist(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	entries, err := h.Store.ListWaitlist(limit, offset)
	if err != nil {
		log.Errorf("ListWaitlist: Failed to list waitlist: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to list waitlist", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Waitlist retrieved successfully", gin.H{
		"entries": entries,
		"count":   len(entries),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetUser returns a single user by ID.
func (h *Handlers) GetUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.Store.FindUserByID(userID)
	if err != nil {
		log.Errorf("GetUser: Failed to fetch user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve user", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

// CreateUser creates a pre-verified account with custom credits.
func (h *Handlers) CreateUser(c *gin.Context) {
	var req AdminCreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("CreateUser: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if ok, reason := services.CheckPasswordStrength(req.Password); !ok {
		utils.ResponseWithError(c, http.StatusBadRequest, reason, nil)
		return
	}

	existing, err := h.Store.FindUserByEmail(req.Email)
	if err != nil {
		log.Errorf("CreateUser: Error finding user by email '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create user", nil)
		return
	}
	if existing != nil {
		utils.ResponseWithError(c, http.StatusConflict, "User with this email already exists", nil)
		return
	}

	passwordHash, err := services.HashPassword(req.Password)
	if err != nil {
		log.Errorf("CreateUser: Error hashing password: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create user", nil)
		return
	}

	credits := h.Config.DefaultCredits
	if req.Credits != nil {
		credits = *req.Credits
	}
	username := req.Username
	if username == "" {
		username = usernameFromEmail(req.Email)
	}

	user := &db.User{
		Email:        req.Email,
		Username:     username,
		PasswordHash: sql.NullString{String: passwordHash, Valid: true},
		Credits:      credits,
		IsAdmin:      req.IsAdmin,
		IsVerified:   true,
	}
	if _, err := h.Store.CreateUser(user); err != nil {
		log.Errorf("CreateUser: Failed to create user '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create user", nil)
		return
	}

	adminLog(c, "created user %s", user.Email)
	utils.ResponseWithSuccess(c, http.StatusCreated, "User created successfully", newUserResponse(user))
}

// UpdateUser applies partial updates to a user's flags and credits.
func (h *Handlers) UpdateUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("UpdateUser: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	user, err := h.Store.FindUserByID(userID)
	if err != nil {
		log.Errorf("UpdateUser: Failed to fetch user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to update user", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
		return
	}

	if req.Username != nil {
		user.Username = strings.TrimSpace(*req.Username)
	}
	if req.Credits != nil {
		user.Credits = *req.Credits
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.IsVerified != nil {
		user.IsVerified = *req.IsVerified
	}

	if err := h.Store.UpdateUser(user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		log.Errorf("UpdateUser: Failed to update user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to update user", nil)
		return
	}

	adminLog(c, "updated user %s", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "User updated successfully", newUserResponse(user))
}

// DeleteUser removes an account. Admin accounts, including the seeded one,
// cannot be deleted, and admins cannot delete themselves.
func (h *Handlers) DeleteUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	claims, exists := middleware.GetUserClaimsFromContext(c)
	if exists && claims.UserID == userID {
		utils.ResponseWithError(c, http.StatusBadRequest, "Cannot delete yourself", nil)
		return
	}

	user, err := h.Store.FindUserByID(userID)
	if err != nil {
		log.Errorf("DeleteUser: Failed to fetch user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to delete user", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
		return
	}
	if user.IsAdmin {
		utils.ResponseWithError(c, http.StatusForbidden, "Admin accounts cannot be deleted", nil)
		return
	}

	if err := h.Store.DeleteUser(userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		log.Errorf("DeleteUser: Failed to delete user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to delete user", nil)
		return
	}

	adminLog(c, "deleted user %s", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "User deleted successfully", nil)
}

// ResetPassword sets a new password for a user.
func (h *Handlers) ResetPassword(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("ResetPassword: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if ok, reason := services.CheckPasswordStrength(req.Password); !ok {
		utils.ResponseWithError(c, http.StatusBadRequest, reason, nil)
		return
	}

	passwordHash, err := services.HashPassword(req.Password)
	if err != nil {
		log.Errorf("ResetPassword: Error hashing password: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to reset password", nil)
		return
	}

	if err := h.Store.SetPassword(userID, passwordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		log.Errorf("ResetPassword: Failed to set password for user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to reset password", nil)
		return
	}

	adminLog(c, "reset password for user %s", userID)
	utils.ResponseWithSuccess(c, http.StatusOK, "Password reset successfully", nil)
}

// AddCredits grants extra credits to a user.
func (h *Handlers) AddCredits(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("AddCredits: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	total, err := h.Store.AddCredits(userID, req.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "User not found", nil)
			return
		}
		log.Errorf("AddCredits: Failed to add credits for user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to add credits", nil)
		return
	}

	adminLog(c, "added %d credits to user %s", req.Amount, userID)
	utils.ResponseWithSuccess(c, http.StatusOK, "Credits added successfully", gin.H{
		"user_id": userID,
		"credits": total,
	})
}

// --- Helpers ---

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	userID, err := uuid.Parse(idParam)
	if err != nil {
		log.Debugf("Invalid user ID format '%s': %v", idParam, err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid user ID format", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// adminLog records which admin performed an action.
func adminLog(c *gin.Context, format string, args ...any) {
	actor := "unknown"
	if claims, ok := middleware.GetUserClaimsFromContext(c); ok {
		actor = claims.Email
	}
	log.Infof("Admin %s "+format, append([]any{actor}, args...)...)
}
