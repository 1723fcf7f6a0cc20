package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
)

// Notification is a named push message from the server describing a change to an Event record.
// It is produced by a transport, consumed once by the router and never persisted.
type Notification struct {
	Name    string
	Payload Payload
}

// Envelope is the wire format shared by every transport.
type Envelope struct {
	Event string          `json:"event"`
	Extra json.RawMessage `json:"extra,omitempty"`
}

var nullJSON = []byte("null")

// Decode parses an Envelope into a Notification.
// An empty extra object yields a zero Payload; handlers treat that as a no-op.
func Decode(data []byte) (Notification, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Notification{}, fmt.Errorf("decode envelope: %w", errors.Join(nerr.ErrDecodeFailed, err))
	}

	if env.Event == "" {
		return Notification{}, fmt.Errorf("decode envelope: missing event name: %w", nerr.ErrDecodeFailed)
	}

	n := Notification{Name: env.Event}

	extra := bytes.TrimSpace(env.Extra)
	if len(extra) == 0 || bytes.Equal(extra, nullJSON) {
		return n, nil
	}

	if err := json.Unmarshal(extra, &n.Payload); err != nil {
		return Notification{}, fmt.Errorf("decode %s payload: %w", env.Event, errors.Join(nerr.ErrDecodeFailed, err))
	}

	return n, nil
}

// Encode renders a Notification as an Envelope.
func Encode(n Notification) ([]byte, error) {
	extra, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", n.Name, errors.Join(nerr.ErrSerializationFailed, err))
	}

	b, err := json.Marshal(Envelope{Event: n.Name, Extra: extra})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", errors.Join(nerr.ErrSerializationFailed, err))
	}

	return b, nil
}
