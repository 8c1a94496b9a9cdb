package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db/queries"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
	"github.com/askdoubt/manim-tutor-api/pkg/utils"
)

// Gin context key for storing user claims.
const UserClaimsContextKey = "userClaims"

// AuthMiddleware is a Gin middleware to authenticate requests using JWT.
func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromHeader(c, jwtService)
		if !ok {
			c.Abort()
			return
		}

		// Store claims in context for downstream handlers
		c.Set(UserClaimsContextKey, claims)

		log.Debugf("AuthMiddleware: User %s (ID: %s) authenticated successfully.", claims.Email, claims.UserID.String())

		c.Next()
	}
}

// OptionalAuthMiddleware attaches claims when a valid token is presented and
// lets the request through anonymously otherwise. Handlers decide what
// anonymity means for them.
func OptionalAuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.Next()
			return
		}
		claims, err := jwtService.ValidateToken(parts[1], services.TokenTypeAccess)
		if err != nil {
			log.Debugf("OptionalAuthMiddleware: ignoring invalid token: %v", err)
			c.Next()
			return
		}
		c.Set(UserClaimsContextKey, claims)
		c.Next()
	}
}

// RequireAdmin guards admin routes. It must run after AuthMiddleware and
// consults the store so a revoked admin flag takes effect immediately.
func RequireAdmin(store *queries.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetUserClaimsFromContext(c)
		if !ok {
			utils.ResponseWithError(c, http.StatusUnauthorized, "Authentication required", nil)
			c.Abort()
			return
		}
		user, err := store.FindUserByID(claims.UserID)
		if err != nil {
			log.Errorf("RequireAdmin: failed to load user %s: %v", claims.UserID, err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to verify permissions", nil)
			c.Abort()
			return
		}
		if user == nil || !user.IsAdmin {
			log.Warnf("RequireAdmin: user %s attempted an admin action", claims.Email)
			utils.ResponseWithError(c, http.StatusForbidden, "Admin access required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, jwtService *services.JWTService) (*services.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		log.Debug("AuthMiddleware: Missing Authorization header.")
		utils.ResponseWithError(c, http.StatusUnauthorized, "Authorization header required", nil)
		return nil, false
	}

	// Expected format: "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		log.Debugf("AuthMiddleware: Invalid Authorization header format: %s", authHeader)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid Authorization header format", nil)
		return nil, false
	}

	claims, err := jwtService.ValidateToken(parts[1], services.TokenTypeAccess)
	if err != nil {
		log.Debugf("AuthMiddleware: Invalid or expired JWT token: %v", err)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid or expired token", err.Error())
		return nil, false
	}
	return claims, true
}

// GetUserClaimsFromContext extracts user claims from Gin context.
func GetUserClaimsFromContext(c *gin.Context) (*services.Claims, bool) {
	claims, exists := c.Get(UserClaimsContextKey)
	if !exists {
		return nil, false
	}
	userClaims, ok := claims.(*services.Claims)
	if !ok {
		return nil, false
	}
	return userClaims, true
}
