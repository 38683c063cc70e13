// internal/quickcheck/errors.go
package quickcheck

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when an operation that needs a verified
// device identity runs while the client is disconnected.
var ErrNotConnected = errors.New("quickcheck device not connected")

// ParseError reports a reply whose leading token matched an expected kind
// but whose grammar did not hold: a missing section or field, unbalanced
// brackets, or a value that failed numeric conversion.
type ParseError struct {
	Section string
	Field   string
	Reason  string
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Section != "":
		return fmt.Sprintf("quickcheck parse: section %s, field %s: %s", e.Section, e.Field, e.Reason)
	case e.Section != "":
		return fmt.Sprintf("quickcheck parse: section %s: %s", e.Section, e.Reason)
	default:
		return fmt.Sprintf("quickcheck parse: %s", e.Reason)
	}
}
