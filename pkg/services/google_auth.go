package services

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	log "github.com/sirupsen/logrus"
)

// GoogleUser is the identity asserted by a verified Google sign-in token.
type GoogleUser struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// GoogleAuthService verifies Firebase ID tokens that the frontend obtains
// through Google sign-in. Verification happens locally against Google's
// published keys; only key refreshes hit the network.
type GoogleAuthService struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleAuthService discovers the secure token issuer for the Firebase
// project and prepares a verifier pinned to its audience.
func NewGoogleAuthService(ctx context.Context, projectID string) (*GoogleAuthService, error) {
	issuer := "https://securetoken.google.com/" + projectID
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering google token issuer: %w", err)
	}
	return &GoogleAuthService{
		verifier: provider.Verifier(&oidc.Config{ClientID: projectID}),
	}, nil
}

// VerifyIDToken checks signature, issuer, audience, and expiry, and returns
// the asserted identity.
func (s *GoogleAuthService) VerifyIDToken(ctx context.Context, rawToken string) (*GoogleUser, error) {
	idToken, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		log.Warnf("Google ID token verification failed: %v", err)
		return nil, fmt.Errorf("invalid google sign-in token: %w", err)
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding google token claims: %w", err)
	}

	return &GoogleUser{
		UID:     idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
