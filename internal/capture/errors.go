package capture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCommand indicates Execute was given a name outside Tools.
	ErrUnknownCommand = errors.New("unknown capture command")

	// ErrCaptureFailed wraps a result whose status is "error".
	ErrCaptureFailed = errors.New("capture failed")
)

// ValidationError lists required arguments missing from a call. It is
// returned before anything is sent to the subordinate.
type ValidationError struct {
	Command string
	Fields  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing required parameters: %s", e.Command, strings.Join(e.Fields, ", "))
}
