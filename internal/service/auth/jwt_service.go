// Package auth implements operator authentication for the HTTP API.
// Operators hold short-lived HMAC-signed JWTs issued out of band (by the
// reelgen-token helper); the service here validates them on every request.
package auth

import (
	"context"
)

// Claims holds the validated identity carried by an operator token.
type Claims struct {
	// Operator is the human-readable identity the token was issued to.
	Operator string
}

// JWTService validates and issues operator tokens.
type JWTService interface {
	// GenerateToken creates a signed token for the named operator.
	GenerateToken(ctx context.Context, operator string) (string, error)

	// ValidateToken checks a token's signature and time claims and returns
	// the operator identity. Returns ErrExpiredToken, ErrTokenNotYetValid,
	// or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}
