// internal/quickcheck/command.go
package quickcheck

import "fmt"

// Command vocabulary of the QuickCheck text protocol. The device is
// read-only over the wire: every command is a query.
const (
	CmdSerial       = "SER"     // identify, returns device serial info
	CmdKey          = "KEY"     // capability / license info
	CmdCount        = "MEASCNT" // number of stored measurements
	CmdGet          = "MEASGET" // fetch one measurement by index
	TokenDeviceInfo = "PTW"     // vendor info token seen in replies

	argIndex = "INDEX-MEAS"
)

// lineTerminator is appended to every request before transmission.
var lineTerminator = []byte{0x0D, 0x0A} // CR LF

// EncodeRequest serializes a command for the wire
func EncodeRequest(command string) []byte {
	return append([]byte(command), lineTerminator...)
}

// GetCommand builds the fetch-by-index command for a zero-based index
func GetCommand(index int) string {
	return fmt.Sprintf("%s;%s=%d", CmdGet, argIndex, index)
}
