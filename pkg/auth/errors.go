package auth

import "errors"

var (
	ErrInvalidState   = errors.New("auth: invalid oauth state")
	ErrInvalidCode    = errors.New("auth: invalid authorization code")
	ErrNoPrimaryEmail = errors.New("auth: no verified email on github account")
	ErrInvalidToken   = errors.New("auth: invalid session token")
	ErrMissingSecret  = errors.New("auth: session secret is required")
)
