package auth

import "errors"

var (
	// ErrTokenInvalid covers unknown, malformed, or badly signed tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired means the wall-clock lifetime elapsed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenExhausted means the usage budget was consumed.
	ErrTokenExhausted = errors.New("auth: token exhausted")
	// ErrUnauthorized means the subject lacks a required permission.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
