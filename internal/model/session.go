package model

import "time"

type Status string

const (
	StatusNoSession     Status = "no_session"
	StatusInitializing  Status = "initializing"
	StatusNeedsScan     Status = "needs_scan"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusAuthFailure   Status = "auth_failure"
	StatusDisconnected  Status = "disconnected"
	StatusInitError     Status = "init_error"
)

// Live reports whether a session in this status must not be recreated.
func (s Status) Live() bool {
	switch s {
	case StatusInitializing, StatusNeedsScan, StatusAuthenticated, StatusReady:
		return true
	}
	return false
}

// LoggedIn reports whether a graceful logout makes sense for this status.
func (s Status) LoggedIn() bool {
	return s == StatusReady || s == StatusAuthenticated
}

// SessionInfo is a read-only snapshot of one tracked session.
type SessionInfo struct {
	ID           string    `json:"userId"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	HasQR        bool      `json:"hasQr"`
	Locked       bool      `json:"locked"`
	LockedAt     time.Time `json:"lockedAt,omitempty"`
}

type Stats struct {
	Total    int            `json:"total"`
	Max      int            `json:"max"`
	ByStatus map[Status]int `json:"byStatus"`
}
