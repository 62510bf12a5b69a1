package service

import (
	"context"
)

// EventKind is a lifecycle signal emitted by a MessagingClient.
type EventKind string

const (
	EventQR            EventKind = "qr-ready"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth-failure"
	EventDisconnected  EventKind = "disconnected"
)

// ClientEvent carries the QR payload for EventQR and a reason for the
// failure kinds.
type ClientEvent struct {
	Kind    EventKind
	Payload string
}

type ConnectionState string

const (
	StateConnected ConnectionState = "connected"
	StatePairing   ConnectionState = "pairing"
	StateOpening   ConnectionState = "opening"
	StateTimeout   ConnectionState = "timeout"
	StateOther     ConnectionState = "other"
)

// MessagingClient is one authenticated connection to the messaging network.
// Each session owns exactly one.
type MessagingClient interface {
	// Connect starts authentication. Lifecycle signals are delivered to sink,
	// possibly from other goroutines, for the lifetime of the client.
	Connect(ctx context.Context, sink func(ClientEvent)) error
	// ResolveRecipient returns the routable id for a digits-only number, or
	// "" when the number is not reachable.
	ResolveRecipient(ctx context.Context, number string) (string, error)
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to string, media *Media, caption string) error
	ConnectionState() ConnectionState
	Logout(ctx context.Context) error
	Destroy() error
}

// ClientFactory builds the client for a session id. Auth data location is
// derived from the id by the implementation.
type ClientFactory func(sessionID string) (MessagingClient, error)

// Media is a payload attached to every message of a dispatch job.
type Media struct {
	Data      []byte
	MimeType  string
	FileName  string
	Thumbnail []byte
	Width     int
	Height    int

	// Cleanup removes the staged upload behind this media, if any.
	Cleanup func() error
}

// Release runs Cleanup once; nil-safe.
func (m *Media) Release() error {
	if m == nil || m.Cleanup == nil {
		return nil
	}
	fn := m.Cleanup
	m.Cleanup = nil
	return fn()
}

type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color int    `json:"color"`
}

// Optional capabilities. Callers discover them with a type assertion; a
// client that does not implement one simply does not support it for the
// account.

type LabelLister interface {
	ListLabels(ctx context.Context) ([]Label, error)
	ChatsByLabel(ctx context.Context, labelID string) ([]Chat, error)
}

type ChatLister interface {
	ListChats(ctx context.Context) ([]Chat, error)
}

// Account describes the logged-in account of a session.
type Account struct {
	JID      string `json:"jid"`
	Phone    string `json:"phoneNumber"`
	PushName string `json:"pushName,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type AccountDescriber interface {
	// Account reports false while the session is not paired.
	Account() (Account, bool)
}

// MediaCache is implemented by clients that keep per-job upload state for a
// Media. ForgetMedia is called once the job no longer needs it.
type MediaCache interface {
	ForgetMedia(media *Media)
}

type ParticipantLister interface {
	ChatParticipants(ctx context.Context, chatID string) ([]string, error)
}
