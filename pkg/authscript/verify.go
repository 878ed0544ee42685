package authscript

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials are the client-credentials inputs the generated script reads
// from a stage environment.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// VerifyResult reports the outcome of a local token exchange probe.
type VerifyResult struct {
	// TokenType is the token type reported by the identity provider.
	TokenType string
	// ExpiresAt is when the issued token expires. Zero when the provider
	// declared no lifetime and the token carried no exp claim.
	ExpiresAt time.Time
	// Lifetime is the usable window of the issued token.
	Lifetime time.Duration
}

// Verify performs the same client-credentials exchange the installed
// pre-request script performs, so bad credentials surface at sync time
// instead of at first collection run. The issued token is discarded.
func Verify(ctx context.Context, creds Credentials) (*VerifyResult, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.TokenURL == "" {
		return nil, fmt.Errorf("client_id, client_secret, and token_url are all required")
	}

	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	result := &VerifyResult{
		TokenType: token.TokenType,
		ExpiresAt: token.Expiry,
	}

	// Prefer the exp claim when the access token is a JWT; providers do not
	// always return expires_in.
	if claims, err := parseExpiry(token.AccessToken); err == nil && !claims.IsZero() {
		result.ExpiresAt = claims
	}
	if !result.ExpiresAt.IsZero() {
		result.Lifetime = time.Until(result.ExpiresAt)
	}
	return result, nil
}

// parseExpiry reads the exp claim from a JWT without verifying its
// signature; this is claim inspection, not validation.
func parseExpiry(tokenString string) (time.Time, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, fmt.Errorf("failed to extract claims from token")
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("token carries no exp claim")
	}
	return time.Unix(int64(exp), 0), nil
}
