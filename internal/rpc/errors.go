package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSpawn indicates the subordinate process could not be started or
	// exited before it settled.
	ErrSpawn = errors.New("failed to start capture subordinate")

	// ErrWrite indicates a request could not be written to the subordinate.
	ErrWrite = errors.New("failed to write request")

	// ErrTimeout indicates no response arrived within the request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrNotConnected indicates a call was made while the transport was not
	// in the Connected state.
	ErrNotConnected = errors.New("capture subordinate not connected")

	// ErrAlreadyStarted indicates Start was called more than once.
	ErrAlreadyStarted = errors.New("transport already started")
)

// RemoteError is an error reported by the subordinate in a response.
// Error returns the subordinate's message unchanged. Code and Data hold the
// raw JSON of those fields and are nil when absent.
type RemoteError struct {
	Code    json.RawMessage
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Detail includes the error code and data, for logging.
func (e *RemoteError) Detail() string {
	detail := "remote error"
	if len(e.Code) > 0 {
		detail += " " + string(e.Code)
	}
	detail += ": " + e.Message
	if len(e.Data) > 0 {
		detail += fmt.Sprintf(" (data: %s)", e.Data)
	}
	return detail
}
