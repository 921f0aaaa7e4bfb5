package camilla

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectTimeout means the engine's control port did not accept a
	// connection within the configured connect timeout.
	ErrConnectTimeout = errors.New("engine connect timeout")

	// ErrCommandTimeout means no reply arrived within the per-request timeout.
	ErrCommandTimeout = errors.New("engine command timeout")

	// ErrNotConnected means a command was attempted with no live connection.
	ErrNotConnected = errors.New("not connected to engine")

	// ErrClientClosed means the client was shut down by its owner.
	ErrClientClosed = errors.New("engine client closed")
)

// CommandError is an explicit non-Ok reply from the engine.
type CommandError struct {
	Command string
	Code    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("engine rejected %s: %s", e.Command, e.Code)
}
