// internal/protocol/udp_session.go
package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UDPConfig represents UDP session configuration
type UDPConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	Timeout    time.Duration `json:"timeout"`
	BufferSize int           `json:"buffer_size"`
}

// Addr returns the host:port endpoint address
func (c *UDPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UDPSession implements Session over a connected UDP socket bound to an
// ephemeral local port. The QuickCheck answers each request datagram with
// exactly one reply datagram.
type UDPSession struct {
	config *UDPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  SessionStats
}

// NewUDPSession creates a new UDP session for one device endpoint
func NewUDPSession(config *UDPConfig, logger *zap.Logger) *UDPSession {
	return &UDPSession{
		config: config,
		logger: logger.With(
			zap.String("protocol", "udp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open acquires the UDP socket. Datagram sockets carry no handshake, so a
// successful Open only means the socket exists; reachability is established
// by the first exchange.
func (s *UDPSession) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return nil
	}

	s.logger.Info("Opening UDP session",
		zap.Duration("timeout", s.config.Timeout),
	)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", s.config.Addr())
	if err != nil {
		s.logger.Error("Failed to open UDP session", zap.Error(err))
		return fmt.Errorf("failed to open UDP socket to %s: %w", s.config.Addr(), err)
	}

	s.conn = conn
	s.isOpen = true
	s.stats.IsConnected = true
	s.stats.LastActivity = time.Now()

	s.logger.Info("UDP session opened",
		zap.String("local_addr", conn.LocalAddr().String()),
	)
	return nil
}

// Close releases the socket. Closing an already-closed session is a
// programming error and is reported as such.
func (s *UDPSession) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.conn == nil {
		return ErrSessionClosed
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Error("Failed to close UDP session", zap.Error(err))
		return fmt.Errorf("failed to close UDP session: %w", err)
	}

	s.conn = nil
	s.isOpen = false
	s.stats.IsConnected = false

	s.logger.Info("UDP session closed")
	return nil
}

// IsOpen returns whether the session is open
func (s *UDPSession) IsOpen() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isOpen && s.conn != nil
}

// Exchange sends one request datagram and blocks for at most the configured
// timeout for one reply datagram. The mutex holds the session to a single
// in-flight exchange: with no request id on the wire, a pipelined request
// could steal the previous request's reply.
func (s *UDPSession) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.conn == nil {
		return nil, ErrSessionClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	if deadline, ok := ctx.Deadline(); ok && deadline.Before(startTime.Add(s.config.Timeout)) {
		s.conn.SetDeadline(deadline)
	} else {
		s.conn.SetDeadline(startTime.Add(s.config.Timeout))
	}

	n, err := s.conn.Write(request)
	if err != nil {
		s.stats.ErrorCount++
		s.logger.Error("UDP write failed", zap.Error(err))
		return nil, fmt.Errorf("failed to send request datagram: %w", err)
	}
	if n != len(request) {
		s.stats.ErrorCount++
		return nil, fmt.Errorf("incomplete send: wrote %d of %d bytes", n, len(request))
	}
	s.stats.BytesWritten += int64(n)

	buffer := make([]byte, s.config.BufferSize)
	n, err = s.conn.Read(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			s.stats.TimeoutCount++
			s.logger.Debug("UDP exchange timed out",
				zap.Duration("timeout", s.config.Timeout),
			)
			return nil, fmt.Errorf("no reply from %s within %s: %w",
				s.config.Addr(), s.config.Timeout, ErrTimeout)
		}
		s.stats.ErrorCount++
		return nil, fmt.Errorf("failed to receive reply datagram: %w", err)
	}

	reply := make([]byte, n)
	copy(reply, buffer[:n])

	duration := time.Since(startTime)
	s.stats.BytesRead += int64(n)
	s.stats.ExchangeCount++
	s.stats.LastActivity = time.Now()
	s.updateAverageRTT(duration)

	s.logger.Debug("UDP exchange completed",
		zap.Int("request_bytes", len(request)),
		zap.Int("reply_bytes", n),
		zap.Duration("rtt", duration),
	)
	return reply, nil
}

// Stats returns a snapshot of the session statistics
func (s *UDPSession) Stats() SessionStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stats
}

// updateAverageRTT updates the running average round-trip time
func (s *UDPSession) updateAverageRTT(newRTT time.Duration) {
	if s.stats.AverageRTT == 0 {
		s.stats.AverageRTT = newRTT
	} else {
		s.stats.AverageRTT = (s.stats.AverageRTT + newRTT) / 2
	}
}
