package domain

import "errors"

var (
	ErrConfig       = errors.New("configuration error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation error")
	ErrGit          = errors.New("git error")
	ErrExec         = errors.New("command execution error")
	ErrRollback     = errors.New("rollback error")
	ErrNotification = errors.New("notification error")
)
