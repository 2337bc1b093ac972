package hub

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrConnClosed        = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
)

// PushError reports a failed write to a single connection.
type PushError struct {
	ConnID string
	Err    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push to %s: %v", e.ConnID, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }
