package auth

import "errors"

// Authentication errors returned by the JWT service.
var (
	// ErrInvalidToken is returned when a token fails signature or claim
	// validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token's expiry has passed.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid is returned when a token's validity window has
	// not started.
	ErrTokenNotYetValid = errors.New("token not yet valid")
)
