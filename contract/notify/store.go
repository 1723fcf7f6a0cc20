package notify

import "context"

// Dispatcher applies actions to the store. It is the only way state changes.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Action) error
}

// Store is the client-side record store: a single-writer dispatch queue plus snapshot reads.
// Implementations must be safe for concurrent use.
type Store interface {
	Dispatcher
	Snapshot() State
}
