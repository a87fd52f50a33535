package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAlreadyClosed = errors.New("trade already closed")
	ErrPositionOpen  = errors.New("position already open for token")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotRegistered = errors.New("user not registered")
	ErrWalletLimit   = errors.New("wallet limit reached")
	ErrUserLimit     = errors.New("user limit reached")
	ErrLockHeld      = errors.New("lock already held")
)
