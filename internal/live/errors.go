package live

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start while a run is connecting or open.
	ErrAlreadyActive = errors.New("conversation session already active")
	// ErrClosed is returned by Start when Close interrupted the connection attempt.
	ErrClosed = errors.New("conversation session closed while connecting")
	// ErrNotActive is returned by operations that need an open conversation.
	ErrNotActive = errors.New("conversation session not active")
)

// ConnectionError reports a failure to open the conversation (dial, auth, network, devices).
type ConnectionError struct {
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open conversation (%s): %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MidSessionError reports a remote or transport failure after the conversation opened.
type MidSessionError struct {
	Err error
}

func (e *MidSessionError) Error() string {
	return fmt.Sprintf("conversation failed: %v", e.Err)
}

func (e *MidSessionError) Unwrap() error {
	return e.Err
}
