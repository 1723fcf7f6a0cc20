package notify

import (
	"bytes"
	"encoding/json"
)

// Payload is the "extra" body of a notification. Fields are optional; the server sends the
// subset relevant to each notification name.
type Payload struct {
	Item           string          `json:"item,omitempty"`
	Items          json.RawMessage `json:"items,omitempty"`
	User           string          `json:"user,omitempty"`
	LockSession    string          `json:"lock_session,omitempty"`
	LockAction     string          `json:"lock_action,omitempty"`
	LockTime       string          `json:"lock_time,omitempty"`
	ETag           string          `json:"etag,omitempty"`
	State          string          `json:"state,omitempty"`
	RevertState    string          `json:"revert_state,omitempty"`
	PubStatus      string          `json:"pubstatus,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	OccurStatus    *OccurStatus    `json:"occur_status,omitempty"`
	CancelledItems []string        `json:"cancelled_items,omitempty"`
	RecurrenceID   string          `json:"recurrence_id,omitempty"`
}

// ItemRef identifies one record and the etag it was changed to.
type ItemRef struct {
	ID   string `json:"id"`
	ETag string `json:"etag,omitempty"`
}

// HasItems reports whether the payload carries a non-null items list.
func (p Payload) HasItems() bool {
	raw := bytes.TrimSpace(p.Items)
	return len(raw) > 0 && !bytes.Equal(raw, nullJSON)
}

// ItemRefs decodes items as a list of {id, etag}. The second value is false when items is
// absent or not shaped that way.
func (p Payload) ItemRefs() ([]ItemRef, bool) {
	if !p.HasItems() {
		return nil, false
	}

	var refs []ItemRef
	if err := json.Unmarshal(p.Items, &refs); err != nil {
		return nil, false
	}

	return refs, true
}

// EventItems decodes items as a list of event records (recurring series notifications).
func (p Payload) EventItems() ([]Event, bool) {
	if !p.HasItems() {
		return nil, false
	}

	var events []Event
	if err := json.Unmarshal(p.Items, &events); err != nil {
		return nil, false
	}

	return events, true
}

// WithItems returns a copy of p with items set to v encoded as JSON.
func (p Payload) WithItems(v any) Payload {
	b, err := json.Marshal(v)
	if err != nil {
		return p
	}

	p.Items = b

	return p
}
