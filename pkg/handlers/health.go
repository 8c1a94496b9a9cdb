package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HealthCheck reports service and collaborator status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	database := "ok"
	if err := h.Store.Ping(); err != nil {
		log.Warnf("HealthCheck: Database ping failed: %v", err)
		database = "unavailable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "manim-tutor-api",
		"database":       database,
		"google_sign_in": h.GoogleAuth != nil,
	})
}

// ServiceBanner is the root endpoint listing the API surface.
func (h *Handlers) ServiceBanner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Manim Tutor API",
		"status":  "running",
		"endpoints": gin.H{
			"ask_doubt":    "/api/ask-doubt",
			"auth_signup":  "/api/auth/signup",
			"auth_verify":  "/api/auth/verify",
			"auth_login":   "/api/auth/login",
			"auth_google":  "/api/auth/google",
			"auth_me":      "/api/auth/me",
			"auth_credits": "/api/auth/credits",
			"admin_users":  "/api/admin/users",
			"admin_stats":  "/api/admin/stats",
			"health":       "/api/health",
			"videos":       "/videos/{filename}",
		},
	})
}
