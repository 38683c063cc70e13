// internal/quickcheck/client_test.go
package quickcheck

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quickcheck-service/internal/protocol"
)

// scriptedSession answers each command from a script. The script maps a
// command to the sequence of outcomes successive sends of that command
// get; the last entry repeats once the sequence is spent.
type scriptedSession struct {
	script   map[string][]scriptStep
	calls    map[string]int
	requests []string
	closed   bool
}

type scriptStep struct {
	reply string
	err   error
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{
		script: make(map[string][]scriptStep),
		calls:  make(map[string]int),
	}
}

func (s *scriptedSession) on(command string, steps ...scriptStep) {
	s.script[command] = steps
}

func (s *scriptedSession) Open(ctx context.Context) error { return nil }
func (s *scriptedSession) IsOpen() bool                   { return !s.closed }
func (s *scriptedSession) Stats() protocol.SessionStats   { return protocol.SessionStats{} }

func (s *scriptedSession) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedSession) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	command := strings.Trim(string(request), "\r\n")
	s.requests = append(s.requests, command)

	steps, ok := s.script[command]
	if !ok {
		return nil, fmt.Errorf("unscripted command %q", command)
	}

	n := s.calls[command]
	s.calls[command]++
	if n >= len(steps) {
		n = len(steps) - 1
	}
	step := steps[n]
	if step.err != nil {
		return nil, step.err
	}
	return []byte(step.reply + "\r\n"), nil
}

func reply(text string) scriptStep { return scriptStep{reply: text} }
func timeout() scriptStep          { return scriptStep{err: protocol.ErrTimeout} }
func failure(err error) scriptStep { return scriptStep{err: err} }

func newTestClient(t *testing.T, session protocol.Session) *Client {
	t.Helper()
	return NewClient(session, RetryPolicy{MaxRetries: 3}, zaptest.NewLogger(t))
}

func connectClient(t *testing.T, session *scriptedSession) *Client {
	t.Helper()
	session.on(CmdSerial, reply("SER;123456"))
	client := newTestClient(t, session)
	require.NoError(t, client.Connect(context.Background()))
	require.True(t, client.Connected())
	return client
}

func TestClientConnect(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdSerial, reply("SER;123456;QUICKCHECK"))

	client := newTestClient(t, session)
	require.NoError(t, client.Connect(context.Background()))

	assert.True(t, client.Connected())
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, []string{"123456", "QUICKCHECK"}, client.Serial())
}

func TestClientConnectWrongReply(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdSerial, reply("PTW;something else"))

	client := newTestClient(t, session)
	require.NoError(t, client.Connect(context.Background()))

	assert.False(t, client.Connected())
}

func TestClientConnectRetriesExhausted(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdSerial, timeout())

	client := newTestClient(t, session)
	require.NoError(t, client.Connect(context.Background()))

	// retry budget is one initial send plus MaxRetries resends
	assert.Equal(t, 4, session.calls[CmdSerial])
	assert.False(t, client.Connected())
}

func TestClientConnectHardError(t *testing.T) {
	session := newScriptedSession()
	wire := fmt.Errorf("connection refused")
	session.on(CmdSerial, failure(wire))

	client := newTestClient(t, session)
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, client.Connected())
}

func TestClientRequiresConnection(t *testing.T) {
	session := newScriptedSession()
	client := newTestClient(t, session)
	ctx := context.Background()

	_, err := client.Capabilities(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.Count(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.Harvest(ctx, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientCapabilities(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdKey, reply("KEY;MEAS;WORKLIST"))

	client := connectClient(t, session)
	caps, err := client.Capabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"MEAS", "WORKLIST"}, caps)
}

func TestClientCountRetriesUnusableReply(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("SER;123456"), reply("MEASCNT;9"))

	client := connectClient(t, session)
	count, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, count)
	assert.Equal(t, 2, session.calls[CmdCount])
}

func TestClientCountGivesUpAfterTwoAttempts(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("PTW;noise"))

	client := connectClient(t, session)
	_, err := client.Count(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, session.calls[CmdCount])
}

func TestClientHarvest(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;3"))
	for i := 0; i < 3; i++ {
		session.on(GetCommand(i), reply(sampleMeasurementReply(i)))
	}

	client := connectClient(t, session)

	var progress []HarvestProgress
	result, err := client.Harvest(context.Background(), func(p HarvestProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Reported)
	require.Len(t, result.Records, 3)
	assert.Empty(t, result.Skipped)

	// fetches go out in ascending index order
	assert.Equal(t, []string{
		"SER", "MEASCNT",
		"MEASGET;INDEX-MEAS=0", "MEASGET;INDEX-MEAS=1", "MEASGET;INDEX-MEAS=2",
	}, session.requests)

	require.Len(t, progress, 3)
	assert.Equal(t, 2, progress[2].Index)
	assert.Equal(t, 3, progress[2].Retrieved)
}

func TestClientHarvestEmptyDevice(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;0"))

	client := connectClient(t, session)
	result, err := client.Harvest(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Reported)
	assert.Empty(t, result.Records)
	for _, request := range session.requests {
		assert.False(t, strings.HasPrefix(request, CmdGet), "no fetch expected on an empty device")
	}
}

func TestClientHarvestResendsUncorrelatedReply(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;1"))
	// first reply answers some other index, the resend matches
	session.on(GetCommand(0),
		reply(sampleMeasurementReply(5)),
		reply(sampleMeasurementReply(0)),
	)

	client := connectClient(t, session)
	result, err := client.Harvest(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, 2, session.calls[GetCommand(0)])
}

func TestClientHarvestRecoversWithinRetryBudget(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;1"))
	session.on(GetCommand(0), timeout(), timeout(), reply(sampleMeasurementReply(0)))

	client := connectClient(t, session)
	result, err := client.Harvest(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 3, session.calls[GetCommand(0)])
}

func TestClientHarvestSkipsDeadIndex(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;3"))
	session.on(GetCommand(0), reply(sampleMeasurementReply(0)))
	session.on(GetCommand(1), timeout())
	session.on(GetCommand(2), reply(sampleMeasurementReply(2)))

	client := connectClient(t, session)
	result, err := client.Harvest(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Reported)
	require.Len(t, result.Records, 2)
	assert.Equal(t, []int{1}, result.Skipped)
	// index 1 burned its whole retry budget before being skipped
	assert.Equal(t, 4, session.calls[GetCommand(1)])
}

func TestClientHarvestSkipsUnparseableRecord(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;2"))
	session.on(GetCommand(0), reply("MEASGET;INDEX-MEAS=0;MD=[broken"))
	session.on(GetCommand(1), reply(sampleMeasurementReply(1)))

	client := connectClient(t, session)
	result, err := client.Harvest(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, []int{0}, result.Skipped)
}

func TestClientHarvestCancellation(t *testing.T) {
	session := newScriptedSession()
	session.on(CmdCount, reply("MEASCNT;2"))
	session.on(GetCommand(0), reply(sampleMeasurementReply(0)))
	session.on(GetCommand(1), reply(sampleMeasurementReply(1)))

	client := connectClient(t, session)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Harvest(ctx, func(p HarvestProgress) {
		if p.Index == 0 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClientClose(t *testing.T) {
	session := newScriptedSession()
	client := connectClient(t, session)

	require.NoError(t, client.Close())
	assert.False(t, client.Connected())
	assert.Nil(t, client.Serial())
	assert.True(t, session.closed)
}
