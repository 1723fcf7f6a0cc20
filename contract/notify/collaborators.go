package notify

import "context"

// Query selects records from the events search index.
type Query struct {
	RecurrenceID string
	OnlyFuture   bool
	SpikeState   string
	IDs          []string
}

// EventsAPI is the server API collaborator.
type EventsAPI interface {
	// GetEvent returns the record from the store when loaded, otherwise fetches it.
	GetEvent(ctx context.Context, id string) (Event, error)
	// FetchByID fetches the record from the server. With force set the store copy is ignored.
	FetchByID(ctx context.Context, id string, force bool) (Event, error)
	// Query runs a search. Results may lag writes.
	Query(ctx context.Context, q Query) ([]Event, error)
	MarkCancelled(ctx context.Context, c Cancellation) error
	MarkPostponed(ctx context.Context, e Event, reason string) error
}

// Lists refreshes the list views.
type Lists interface {
	// RefetchEvents reloads the events list page and returns the fetched records.
	RefetchEvents(ctx context.Context) ([]Event, error)
	// RefetchCombined reloads the combined events and planning list.
	RefetchCombined(ctx context.Context) error
	// CombinedSpikeChanged drops items from the combined list when their new spike state no
	// longer matches the list filter.
	CombinedSpikeChanged(ctx context.Context, items []Event) error
}

// Modal types.
const (
	ModalNotification = "NOTIFICATION_MODAL"
)

// Modal is a modal-display request.
type Modal struct {
	Type  string `json:"modalType"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// UI is the view-state collaborator.
type UI interface {
	ShowModal(ctx context.Context, m Modal) error
	HideModal(ctx context.Context) error
	// ClosePreviewAndEditorForItems closes any preview or editor showing one of items and
	// surfaces message to the user.
	ClosePreviewAndEditorForItems(ctx context.Context, items []Event, message string) error
}

// Notifier surfaces user-facing notices.
type Notifier interface {
	Error(ctx context.Context, msg string)
	Warning(ctx context.Context, msg string)
}
