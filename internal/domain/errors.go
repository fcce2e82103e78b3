package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrSigningFailed      = errors.New("signing failed")
	ErrOrderRejected      = errors.New("order rejected")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrNoActiveInstrument = errors.New("no active instrument")
	ErrLockHeld           = errors.New("lock already held")
)
