package notify

import "context"

// Handler translates one notification into store actions and follow-on work.
// The state accessor must be called again after every suspension point; the store may have
// changed in between.
type Handler func(ctx context.Context, n Notification, state StateFunc) error

// Resolver returns the current handler for a notification name.
type Resolver func() Handler
