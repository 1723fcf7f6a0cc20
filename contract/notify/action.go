package notify

// Action types understood by the store reducer.
const (
	ActionLockEvent            = "LOCK_EVENT"
	ActionUnlockEvent          = "UNLOCK_EVENT"
	ActionSpikeEvent           = "SPIKE_EVENT"
	ActionUnspikeEvent         = "UNSPIKE_EVENT"
	ActionSpikeRecurringEvents = "SPIKE_RECURRING_EVENTS"
	ActionMarkEventPublished   = "MARK_EVENT_PUBLISHED"
	ActionMarkEventUnpublished = "MARK_EVENT_UNPUBLISHED"
	ActionMarkEventCancelled   = "MARK_EVENT_CANCELLED"
	ActionMarkEventPostponed   = "MARK_EVENT_POSTPONED"
	ActionReceiveEvents        = "RECEIVE_EVENTS"
	ActionSetEventsList        = "SET_EVENTS_LIST"
	ActionSetCombinedList      = "SET_COMBINED_LIST"
	ActionSelectEvents         = "SELECT_EVENTS"
	ActionDeselectEvents       = "DESELECT_EVENTS"
	ActionShowModal            = "SHOW_MODAL"
	ActionHideModal            = "HIDE_MODAL"
	ActionClosePreview         = "CLOSE_PREVIEW"
	ActionCloseEditor          = "CLOSE_EDITOR"
	ActionOpenPreview          = "OPEN_PREVIEW"
	ActionOpenEditor           = "OPEN_EDITOR"
	ActionSetSpikeState        = "SET_SPIKE_STATE"
	ActionReceiveUsers         = "RECEIVE_USERS"
	ActionReceiveLocks         = "RECEIVE_LOCKS"
)

// Action is a store mutation request. Payload is one of the payload types below.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventPayload carries a single merged record for lock, unlock, spike and unspike.
type EventPayload struct {
	Event      Event  `json:"event"`
	SpikeState string `json:"spikeState,omitempty"`
}

// RecurringSpikePayload carries a spiked recurring series.
type RecurringSpikePayload struct {
	Events       []Event `json:"events"`
	RecurrenceID string  `json:"recurrence_id,omitempty"`
	SpikeState   string  `json:"spikeState"`
}

// PublishPayload carries a publish or unpublish of one or more records.
type PublishPayload struct {
	Item      string    `json:"item"`
	Items     []ItemRef `json:"items"`
	State     string    `json:"state"`
	PubStatus string    `json:"pubstatus"`
}

// Cancellation describes a cancelled record and the series members cancelled with it.
type Cancellation struct {
	ID             string       `json:"id"`
	ETag           string       `json:"etag"`
	Reason         string       `json:"reason"`
	OccurStatus    *OccurStatus `json:"occur_status,omitempty"`
	CancelledItems []string     `json:"cancelled_items"`
}

// PostponePayload carries a postponed record.
type PostponePayload struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

// EventsPayload carries records fetched from the API.
type EventsPayload struct {
	Events []Event `json:"events"`
}

// ListPayload carries the ids of a list page, in display order.
type ListPayload struct {
	IDs []string `json:"ids"`
}

// ModalPayload carries a modal display request.
type ModalPayload struct {
	Modal Modal `json:"modal"`
}

// ClosePayload closes a preview or editor showing ID.
type ClosePayload struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// ItemPayload opens a preview or editor on ID.
type ItemPayload struct {
	ID string `json:"id"`
}

// SpikeStatePayload sets the spiked filter of the events search.
type SpikeStatePayload struct {
	SpikeState string `json:"spikeState"`
}

// UsersPayload carries known users.
type UsersPayload struct {
	Users []User `json:"users"`
}

// LocksPayload carries the locked-items registry, keyed by record id.
type LocksPayload struct {
	Locks map[string]Lock `json:"locks"`
}
