package hub

import (
	"encoding/json"
	"fmt"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/protocol"
)

// Dispatcher writes one push to one connection. It never retries or buffers.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Push serializes msg and hands it to conn. Failures come back as *PushError.
func (d *Dispatcher) Push(conn Conn, msg protocol.WSResponse) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return &PushError{ConnID: conn.ID(), Err: fmt.Errorf("marshal %s push: %w", msg.Type, err)}
	}
	return d.PushRaw(conn, b)
}

// PushRaw is Push for an already encoded message, so a fan-out marshals once.
func (d *Dispatcher) PushRaw(conn Conn, b []byte) error {
	if err := conn.Send(b); err != nil {
		return &PushError{ConnID: conn.ID(), Err: err}
	}
	return nil
}
