package ws

import "time"

const (
	EventQRGenerated          = "QR_GENERATED"
	EventSessionStatusChanged = "SESSION_STATUS_CHANGED"
	EventSessionClosed        = "SESSION_CLOSED"
	EventDispatchProgress     = "DISPATCH_PROGRESS"
	EventDispatchFinished     = "DISPATCH_FINISHED"
)

type WsEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type QRGeneratedData struct {
	SessionID string `json:"userId"`
	QRData    string `json:"qrData"`
}

type SessionStatusChangedData struct {
	SessionID string `json:"userId"`
	Status    string `json:"status"`
	Previous  string `json:"previous,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type DispatchProgressData struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"userId"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Number    string `json:"number"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
}
