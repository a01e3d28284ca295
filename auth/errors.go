package auth

import "errors"

// Auth package errors.
var (
	// ErrInvalidCredentials indicates a wrong username or password, or an inactive user.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrUserExists indicates the username is taken.
	ErrUserExists = errors.New("auth: user already exists")

	// ErrWeakPassword indicates a password outside the accepted length.
	ErrWeakPassword = errors.New("auth: password must be between 6 and 72 bytes")

	// ErrSessionNotFound indicates an unknown or expired session.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthenticated indicates a request without valid credentials.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden indicates an authenticated user without admin rights.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrCSRF indicates a missing or mismatched CSRF token.
	ErrCSRF = errors.New("auth: csrf token missing or incorrect")
)
