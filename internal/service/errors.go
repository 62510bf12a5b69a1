package service

import "errors"

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotReady  = errors.New("session is not ready")
	ErrSessionBusy      = errors.New("a bulk dispatch is already running for this session")
	ErrSessionClosed    = errors.New("session closed during setup")
	ErrInitFailed       = errors.New("session init failed")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrEmptyPayload     = errors.New("a message or a media payload is required")
	ErrUnsupported      = errors.New("not supported for this account")
	ErrNotGroup         = errors.New("chat is not a group")
)
