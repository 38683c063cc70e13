// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"time"
)

// Transport errors. ErrTimeout marks an exchange that got no reply within
// the configured window; retrying it is the caller's decision, never the
// session's.
var (
	ErrTimeout       = errors.New("timed out waiting for device reply")
	ErrSessionClosed = errors.New("session is closed")
)

// Session represents one request/reply channel to a QuickCheck device.
// The wire protocol carries no request identifier, so replies correlate to
// requests only by issuance order: a session never allows a second request
// in flight before the first reply (or its timeout) is consumed.
type Session interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Exchange sends one datagram and blocks for at most the configured
	// timeout for exactly one reply datagram.
	Exchange(ctx context.Context, request []byte) ([]byte, error)

	// Health and diagnostics
	Stats() SessionStats
}

// SessionStats provides session-level statistics
type SessionStats struct {
	BytesWritten  int64         `json:"bytes_written"`
	BytesRead     int64         `json:"bytes_read"`
	ExchangeCount int64         `json:"exchange_count"`
	TimeoutCount  int64         `json:"timeout_count"`
	ErrorCount    int64         `json:"error_count"`
	LastActivity  time.Time     `json:"last_activity"`
	AverageRTT    time.Duration `json:"average_rtt"`
	IsConnected   bool          `json:"is_connected"`
}
