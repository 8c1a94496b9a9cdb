package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/askdoubt/manim-tutor-api/pkg/config"
	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/db/queries"
	"github.com/askdoubt/manim-tutor-api/pkg/pipeline"
	"github.com/askdoubt/manim-tutor-api/pkg/renderer"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
)

// ScriptPipeline produces a validated animation script for a question.
type ScriptPipeline interface {
	Run(ctx context.Context, question string, image []byte, mimeType string) (*pipeline.Result, error)
}

// VideoRenderer turns a validated script into a video file.
type VideoRenderer interface {
	Render(ctx context.Context, script, entryPoint string) (*renderer.RenderResult, error)
}

// Handlers holds the collaborators every route handler needs.
type Handlers struct {
	Config     *config.Config
	Store      *queries.Store
	JWT        *services.JWTService
	GoogleAuth *services.GoogleAuthService
	Pipeline   ScriptPipeline
	Renderer   VideoRenderer
}

// NewHandlers creates a new instance of Handlers. googleAuth may be nil when
// Google sign-in is not configured; the sign-in route then reports 503.
func NewHandlers(cfg *config.Config, store *queries.Store, jwtService *services.JWTService, googleAuth *services.GoogleAuthService, pipe ScriptPipeline, rend VideoRenderer) *Handlers {
	return &Handlers{
		Config:     cfg,
		Store:      store,
		JWT:        jwtService,
		GoogleAuth: googleAuth,
		Pipeline:   pipe,
		Renderer:   rend,
	}
}

// UserResponse is the sanitized user shape sent back to clients.
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Credits    int       `json:"credits"`
	IsAdmin    bool      `json:"is_admin"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  string    `json:"created_at"`
}

// newUserResponse converts a db.User to a UserResponse, dropping the
// password hash and other internals.
func newUserResponse(user *db.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Username:   user.Username,
		Credits:    user.Credits,
		IsAdmin:    user.IsAdmin,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt.Format(http.TimeFormat),
	}
}

// TokenResponse carries a fresh token pair plus the user it belongs to.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

func newTokenResponse(pair *services.TokenPair, user *db.User) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         newUserResponse(user),
	}
}
