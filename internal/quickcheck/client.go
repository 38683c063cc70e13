// internal/quickcheck/client.go
package quickcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
)

// State is the client's connection state. The device offers no login, so
// Connected only means the device answered the identify command.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// HarvestProgress reports the position of a running harvest
type HarvestProgress struct {
	Index     int `json:"index"`
	Reported  int `json:"reported"`
	Retrieved int `json:"retrieved"`
	Skipped   int `json:"skipped"`
}

// HarvestResult is the outcome of one full retrieval
type HarvestResult struct {
	Reported int                  `json:"reported"`
	Records  []*model.Measurement `json:"records"`
	Skipped  []int                `json:"skipped"`
}

// Client drives the QuickCheck command vocabulary over one session. It is
// not safe for concurrent use; poll multiple devices with one client and
// one session per device.
type Client struct {
	session protocol.Session
	retry   RetryPolicy
	logger  *zap.Logger
	state   State
	serial  []string
}

// NewClient creates a protocol client on an opened session
func NewClient(session protocol.Session, retry RetryPolicy, logger *zap.Logger) *Client {
	return &Client{
		session: session,
		retry:   retry,
		logger:  logger.With(zap.String("component", "quickcheck-client")),
	}
}

// State returns the current connection state
func (c *Client) State() State {
	return c.state
}

// Connected reports whether the device has answered the identify command
func (c *Client) Connected() bool {
	return c.state == StateConnected
}

// Serial returns the identity tokens from the last successful identify
func (c *Client) Serial() []string {
	return c.serial
}

// Connect issues the identify command. A reply led by the SER token moves
// the client to Connected; anything else, including a retry-exhausted empty
// reply, leaves it Disconnected without an error — callers decide what an
// unreachable device means to them by checking Connected. Hard transport
// faults still surface as errors.
func (c *Client) Connect(ctx context.Context) error {
	if c.state == StateConnected {
		return nil
	}

	reply, err := c.send(ctx, CmdSerial)
	if err != nil {
		return err
	}

	parsed, perr := ParseReply(reply)
	if perr != nil {
		c.logger.Warn("Identify reply did not parse", zap.Error(perr))
		return nil
	}
	if parsed.Kind != CmdSerial {
		c.logger.Warn("Device did not identify",
			zap.String("reply_kind", parsed.Kind),
		)
		return nil
	}

	c.state = StateConnected
	c.serial = parsed.Info
	c.logger.Info("Connected to QuickCheck device",
		zap.Strings("serial", parsed.Info),
	)
	return nil
}

// Capabilities queries the device's capability/license info
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}

	reply, err := c.send(ctx, CmdKey)
	if err != nil {
		return nil, err
	}
	parsed, perr := ParseReply(reply)
	if perr != nil {
		return nil, perr
	}
	if parsed.Kind != CmdKey {
		return nil, fmt.Errorf("device did not answer %s: got %q", CmdKey, parsed.Kind)
	}
	return parsed.Info, nil
}

// Count asks the device how many measurements it currently stores. The
// firmware occasionally answers the count request late, so a reply that is
// not a count is re-asked once before giving up.
func (c *Client) Count(ctx context.Context) (int, error) {
	if c.state != StateConnected {
		return 0, ErrNotConnected
	}

	for attempt := 0; attempt < 2; attempt++ {
		reply, err := c.send(ctx, CmdCount)
		if err != nil {
			return 0, err
		}
		parsed, perr := ParseReply(reply)
		if perr == nil && parsed.Kind == CmdCount {
			return parsed.Count, nil
		}
		c.logger.Warn("Count request got no usable reply",
			zap.Int("attempt", attempt+1),
			zap.String("reply", reply),
		)
	}
	return 0, fmt.Errorf("device did not answer %s", CmdCount)
}

// Harvest retrieves every measurement the device stores: count first, then
// one fetch per index in ascending order. Each fetch is resent until the
// reply textually echoes the request — the correlation check standing in
// for the request id the wire does not have. Indexes whose retries are
// exhausted, and replies that fail to parse, are skipped rather than
// aborting the run, so a flaky network degrades the result instead of
// losing it. progress may be nil.
func (c *Client) Harvest(ctx context.Context, progress func(HarvestProgress)) (*HarvestResult, error) {
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}

	count, err := c.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("measurement count unavailable: %w", err)
	}

	result := &HarvestResult{Reported: count}
	if count == 0 {
		return result, nil
	}

	c.logger.Info("Harvesting measurements", zap.Int("count", count))

	for i := 0; i < count; i++ {
		record, ok, err := c.fetchIndex(ctx, i)
		if err != nil {
			return result, err
		}
		if ok {
			result.Records = append(result.Records, record)
		} else {
			result.Skipped = append(result.Skipped, i)
		}
		if progress != nil {
			progress(HarvestProgress{
				Index:     i,
				Reported:  count,
				Retrieved: len(result.Records),
				Skipped:   len(result.Skipped),
			})
		}
	}

	c.logger.Info("Harvest finished",
		zap.Int("reported", result.Reported),
		zap.Int("retrieved", len(result.Records)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// Close drops the connection state and releases the session
func (c *Client) Close() error {
	c.state = StateDisconnected
	c.serial = nil
	return c.session.Close()
}

// fetchIndex retrieves one measurement, resending until the reply echoes
// the request. ok is false when the retry budget was spent or the record
// did not parse; the caller skips the index in either case.
func (c *Client) fetchIndex(ctx context.Context, index int) (*model.Measurement, bool, error) {
	command := GetCommand(index)

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		reply, err := c.send(ctx, command)
		if err != nil {
			return nil, false, err
		}
		if reply == "" {
			// retry budget already spent inside send
			c.logger.Warn("No reply for measurement index, skipping",
				zap.Int("index", index),
			)
			return nil, false, nil
		}
		if !strings.Contains(reply, command) {
			// reply for some other request; ask again
			c.logger.Debug("Reply does not echo request, resending",
				zap.Int("index", index),
			)
			continue
		}

		parsed, perr := ParseReply(reply)
		if perr != nil {
			c.logger.Error("Measurement reply failed to parse",
				zap.Int("index", index),
				zap.Error(perr),
			)
			return nil, false, nil
		}
		if parsed.Measurement == nil {
			c.logger.Warn("Correlated reply carried no measurement",
				zap.Int("index", index),
				zap.String("reply_kind", parsed.Kind),
			)
			return nil, false, nil
		}
		return parsed.Measurement, true, nil
	}
}

// send performs one command exchange under the retry policy. Exhausted
// retries degrade to an empty reply so harvests survive dropped packets;
// every other transport fault is returned as-is.
func (c *Client) send(ctx context.Context, command string) (string, error) {
	request := EncodeRequest(command)

	var reply string
	err := c.retry.Do(ctx, func() error {
		raw, err := c.session.Exchange(ctx, request)
		if err != nil {
			return err
		}
		reply = strings.Trim(string(raw), "\r\n")
		return nil
	})
	if err != nil {
		if errors.Is(err, protocol.ErrTimeout) {
			c.logger.Warn("Exchange retries exhausted",
				zap.String("command", command),
				zap.Int("attempts", c.retry.MaxRetries+1),
			)
			return "", nil
		}
		return "", err
	}
	return reply, nil
}
