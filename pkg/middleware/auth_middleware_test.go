package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
)

func newAccessToken(t *testing.T, svc *services.JWTService, user *db.User) string {
	t.Helper()
	pair, err := svc.GenerateTokenPair(user)
	require.NoError(t, err)
	return pair.AccessToken
}

// probeRouter mounts the middleware in front of a handler that reports
// whether claims were attached and for whom.
func probeRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/probe", mw, func(c *gin.Context) {
		claims, ok := GetUserClaimsFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "email": claims.Email})
	})
	return router
}

func probe(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	svc := services.NewJWTService("test-secret")
	user := &db.User{ID: uuid.New(), Email: "ada@example.com", Username: "ada"}
	token := newAccessToken(t, svc, user)
	router := probeRouter(AuthMiddleware(svc))

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "missing header",
			header:      "",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Authorization header required",
		},
		{
			name:        "malformed header",
			header:      "Token abc",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid Authorization header format",
		},
		{
			name:        "missing token part",
			header:      "Bearer",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid Authorization header format",
		},
		{
			name:        "invalid token",
			header:      "Bearer not-a-token",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid or expired token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := probe(router, tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}

	t.Run("valid token reaches the handler with claims", func(t *testing.T) {
		w := probe(router, "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"authenticated":true`)
		assert.Contains(t, w.Body.String(), user.Email)
	})

	t.Run("bearer keyword is case insensitive", func(t *testing.T) {
		w := probe(router, "bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"authenticated":true`)
	})

	t.Run("refresh token rejected on access routes", func(t *testing.T) {
		pair, err := svc.GenerateTokenPair(user)
		require.NoError(t, err)
		w := probe(router, "Bearer "+pair.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOptionalAuthMiddleware(t *testing.T) {
	svc := services.NewJWTService("test-secret")
	user := &db.User{ID: uuid.New(), Email: "ada@example.com", Username: "ada"}
	token := newAccessToken(t, svc, user)
	router := probeRouter(OptionalAuthMiddleware(svc))

	tests := []struct {
		name          string
		header        string
		authenticated bool
	}{
		{
			name:          "no header passes anonymously",
			header:        "",
			authenticated: false,
		},
		{
			name:          "malformed header passes anonymously",
			header:        "Token abc",
			authenticated: false,
		},
		{
			name:          "invalid token passes anonymously",
			header:        "Bearer garbage",
			authenticated: false,
		},
		{
			name:          "valid token attaches claims",
			header:        "Bearer " + token,
			authenticated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := probe(router, tt.header)
			assert.Equal(t, http.StatusOK, w.Code, "optional auth never blocks the request")

			var resp struct {
				Authenticated bool `json:"authenticated"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.authenticated, resp.Authenticated)
		})
	}
}

func TestRequireAdminWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", RequireAdmin(nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication required")
}

func TestGetUserClaimsFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("missing key", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		claims, ok := GetUserClaimsFromContext(c)
		assert.False(t, ok)
		assert.Nil(t, claims)
	})

	t.Run("wrong type stored", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserClaimsContextKey, "not-claims")
		claims, ok := GetUserClaimsFromContext(c)
		assert.False(t, ok)
		assert.Nil(t, claims)
	})

	t.Run("claims round trip", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		want := &services.Claims{Email: "ada@example.com"}
		c.Set(UserClaimsContextKey, want)
		claims, ok := GetUserClaimsFromContext(c)
		assert.True(t, ok)
		assert.Same(t, want, claims)
	})
}
