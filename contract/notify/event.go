package notify

import "time"

// Workflow states of an Event record.
const (
	StateDraft       = "draft"
	StateIngested    = "ingested"
	StateScheduled   = "scheduled"
	StateKilled      = "killed"
	StateCancelled   = "cancelled"
	StateRescheduled = "rescheduled"
	StatePostponed   = "postponed"
	StateSpiked      = "spiked"
)

// Spiked filter values of the events search context.
const (
	SpikedStateSpiked    = "spiked"
	SpikedStateNotSpiked = "draft"
	SpikedStateBoth      = "both"
)

// Publication statuses.
const (
	PubStatusUsable   = "usable"
	PubStatusWithheld = "withheld"
)

// DefaultLockAction is recorded when a lock notification omits lock_action.
const DefaultLockAction = "edit"

// Event is an editorial planning Event record as held by the store.
type Event struct {
	ID             string       `json:"_id"`
	ETag           string       `json:"_etag,omitempty"`
	Name           string       `json:"name,omitempty"`
	Slugline       string       `json:"slugline,omitempty"`
	State          string       `json:"state,omitempty"`
	RevertState    string       `json:"revert_state,omitempty"`
	PubStatus      string       `json:"pubstatus,omitempty"`
	RecurrenceID   string       `json:"recurrence_id,omitempty"`
	LockAction     string       `json:"lock_action,omitempty"`
	LockUser       string       `json:"lock_user,omitempty"`
	LockSession    string       `json:"lock_session,omitempty"`
	LockTime       string       `json:"lock_time,omitempty"`
	Dates          Dates        `json:"dates"`
	Location       *Location    `json:"location,omitempty"`
	PlanningIDs    []string     `json:"planning_ids,omitempty"`
	RescheduleFrom string       `json:"reschedule_from,omitempty"`
	OccurStatus    *OccurStatus `json:"occur_status,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Expired        bool         `json:"expired,omitempty"`
}

// Dates is the scheduled span of an Event.
type Dates struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Location is where an Event takes place.
type Location struct {
	Name             string `json:"name,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
}

// OccurStatus is the occurrence status vocabulary entry of an Event.
type OccurStatus struct {
	QCode string `json:"qcode"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
}

// Lock is a session-scoped claim on a record.
type Lock struct {
	User    string `json:"user"`
	Session string `json:"session"`
	Action  string `json:"action"`
	Time    string `json:"time,omitempty"`
}

// User is a newsroom user referenced by lock notifications.
type User struct {
	ID          string `json:"_id"`
	DisplayName string `json:"display_name"`
}

// ClearLock returns a copy with every lock field cleared.
func (e Event) ClearLock() Event {
	e.LockAction = ""
	e.LockUser = ""
	e.LockSession = ""
	e.LockTime = ""

	return e
}

// HasPlanning reports whether any planning item covers the event.
func (e Event) HasPlanning() bool { return len(e.PlanningIDs) > 0 }

// LockOf returns the lock currently held on e: the record's own lock fields first, then the
// locked-items registry. It returns false when e is unlocked.
func LockOf(e Event, locks map[string]Lock) (Lock, bool) {
	if e.LockSession != "" || e.LockUser != "" {
		return Lock{User: e.LockUser, Session: e.LockSession, Action: e.LockAction, Time: e.LockTime}, true
	}

	if e.ID == "" {
		return Lock{}, false
	}

	l, ok := locks[e.ID]

	return l, ok
}
