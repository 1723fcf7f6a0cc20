package notify

import "slices"

// State is a read-only snapshot of the client-side store.
// Handlers take a fresh snapshot at every step; a snapshot is never updated in place.
type State struct {
	Events     map[string]Event
	Locks      map[string]Lock
	Users      []User
	SessionID  string
	SpikeState string
	EventsList []string
	Combined   []string
	// Selected is the multi-selection of the events list. Refreshing a list page keeps it.
	Selected   []string
	PreviewID  string
	EditID     string
	Modal      *Modal
}

// StateFunc returns the current store snapshot.
type StateFunc func() State

// Event looks up a record by id.
func (s State) Event(id string) (Event, bool) {
	e, ok := s.Events[id]
	return e, ok
}

// HasEvent reports whether id is loaded in the store.
func (s State) HasEvent(id string) bool {
	_, ok := s.Events[id]
	return ok
}

// User looks up a user by id.
func (s State) User(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}

	return User{}, false
}

// SearchSpikeState is the spiked filter of the events search, NOT_SPIKED when unset.
func (s State) SearchSpikeState() string {
	if s.SpikeState == "" {
		return SpikedStateNotSpiked
	}

	return s.SpikeState
}

// InEventsList reports whether id is on the current events list page.
func (s State) InEventsList(id string) bool { return slices.Contains(s.EventsList, id) }

// IsSelected reports whether id is in the events list multi-selection.
func (s State) IsSelected(id string) bool { return slices.Contains(s.Selected, id) }
