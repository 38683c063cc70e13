// internal/protocol/udp_session_test.go
package protocol

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startEchoDevice runs a UDP listener answering each datagram with the
// request prefixed by "ECHO;". It stops when the test ends.
func startEchoDevice(t *testing.T) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buffer := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFrom(buffer)
			if err != nil {
				return
			}
			reply := append([]byte("ECHO;"), buffer[:n]...)
			conn.WriteTo(reply, addr)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

// startSilentDevice runs a UDP listener that never answers.
func startSilentDevice(t *testing.T) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn.LocalAddr().(*net.UDPAddr)
}

func newTestSession(t *testing.T, addr *net.UDPAddr, timeout time.Duration) *UDPSession {
	t.Helper()
	return NewUDPSession(&UDPConfig{
		Host:       "127.0.0.1",
		Port:       addr.Port,
		Timeout:    timeout,
		BufferSize: 4096,
	}, zaptest.NewLogger(t))
}

func TestUDPSessionExchange(t *testing.T) {
	addr := startEchoDevice(t)
	session := newTestSession(t, addr, 2*time.Second)

	ctx := context.Background()
	require.NoError(t, session.Open(ctx))
	assert.True(t, session.IsOpen())

	reply, err := session.Exchange(ctx, []byte("SER\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "ECHO;SER\r\n", string(reply))

	stats := session.Stats()
	assert.Equal(t, int64(1), stats.ExchangeCount)
	assert.Equal(t, int64(5), stats.BytesWritten)
	assert.True(t, stats.IsConnected)

	require.NoError(t, session.Close())
	assert.False(t, session.IsOpen())
}

func TestUDPSessionOpenIsIdempotent(t *testing.T) {
	addr := startEchoDevice(t)
	session := newTestSession(t, addr, time.Second)

	ctx := context.Background()
	require.NoError(t, session.Open(ctx))
	require.NoError(t, session.Open(ctx))
	require.NoError(t, session.Close())
}

func TestUDPSessionExchangeTimeout(t *testing.T) {
	addr := startSilentDevice(t)
	session := newTestSession(t, addr, 100*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, session.Open(ctx))

	_, err := session.Exchange(ctx, []byte("SER\r\n"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, strings.Contains(err.Error(), "no reply"))

	stats := session.Stats()
	assert.Equal(t, int64(1), stats.TimeoutCount)
	assert.Equal(t, int64(0), stats.ExchangeCount)
}

func TestUDPSessionContextDeadlineWins(t *testing.T) {
	addr := startSilentDevice(t)
	session := newTestSession(t, addr, 10*time.Second)

	require.NoError(t, session.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := session.Exchange(ctx, []byte("SER\r\n"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUDPSessionClosedErrors(t *testing.T) {
	addr := startEchoDevice(t)
	session := newTestSession(t, addr, time.Second)

	_, err := session.Exchange(context.Background(), []byte("SER\r\n"))
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.ErrorIs(t, session.Close(), ErrSessionClosed)

	require.NoError(t, session.Open(context.Background()))
	require.NoError(t, session.Close())
	assert.ErrorIs(t, session.Close(), ErrSessionClosed)
}

func TestUDPSessionCancelledContext(t *testing.T) {
	addr := startEchoDevice(t)
	session := newTestSession(t, addr, time.Second)

	require.NoError(t, session.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Exchange(ctx, []byte("SER\r\n"))
	assert.ErrorIs(t, err, context.Canceled)
}
