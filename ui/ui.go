// Package ui turns view-state requests into store actions and user-facing notices.
package ui

import (
	"context"
	"errors"
	"log/slog"

	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// Controller implements notify.UI on top of a store.
type Controller struct {
	store    notify.Store
	notifier notify.Notifier
}

var _ notify.UI = (*Controller)(nil)

// New creates a Controller. A nil notifier logs through slog.Default.
func New(s notify.Store, n notify.Notifier) *Controller {
	if n == nil {
		n = NewLogNotifier(nil)
	}

	return &Controller{store: s, notifier: n}
}

func (c *Controller) ShowModal(ctx context.Context, m notify.Modal) error {
	return c.store.Dispatch(ctx, notify.Action{Type: notify.ActionShowModal, Payload: notify.ModalPayload{Modal: m}})
}

func (c *Controller) HideModal(ctx context.Context) error {
	return c.store.Dispatch(ctx, notify.Action{Type: notify.ActionHideModal})
}

// ClosePreviewAndEditorForItems closes the preview and the editor when they show one of items.
// message is surfaced once if anything was closed.
func (c *Controller) ClosePreviewAndEditorForItems(ctx context.Context, items []notify.Event, message string) error {
	var errs []error

	closed := false

	for _, item := range items {
		st := c.store.Snapshot()

		if item.ID != "" && st.PreviewID == item.ID {
			errs = append(errs, c.store.Dispatch(ctx, notify.Action{
				Type:    notify.ActionClosePreview,
				Payload: notify.ClosePayload{ID: item.ID, Message: message},
			}))
			closed = true
		}

		if item.ID != "" && st.EditID == item.ID {
			errs = append(errs, c.store.Dispatch(ctx, notify.Action{
				Type:    notify.ActionCloseEditor,
				Payload: notify.ClosePayload{ID: item.ID, Message: message},
			}))
			closed = true
		}
	}

	if closed && message != "" {
		c.notifier.Warning(ctx, message)
	}

	return errors.Join(errs...)
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

var _ notify.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier; nil uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}

	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Error(ctx context.Context, msg string) {
	n.logger.ErrorContext(ctx, "notice", "level", "error", "message", msg)
}

func (n *LogNotifier) Warning(ctx context.Context, msg string) {
	n.logger.WarnContext(ctx, "notice", "level", "warning", "message", msg)
}
