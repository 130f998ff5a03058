package service

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password, so callers cannot probe which usernames exist.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidRole        = errors.New("invalid role")
	// ErrInvalidToken covers malformed, expired, revoked and blacklisted
	// tokens uniformly.
	ErrInvalidToken = errors.New("invalid or expired token")
)

type AlreadyExistsError struct {
	Field string
}

func (e *AlreadyExistsError) Error() string {
	return e.Field + " already exists"
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}
