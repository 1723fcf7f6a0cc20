package events

import (
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/router"
)

// Notification names published by the server for event records.
const (
	NameCreated              = "events:created"
	NameCreatedRecurring     = "events:created:recurring"
	NameUpdated              = "events:updated"
	NameUpdatedRecurring     = "events:updated:recurring"
	NameLock                 = "events:lock"
	NameUnlock               = "events:unlock"
	NameSpiked               = "events:spiked"
	NameUnspiked             = "events:unspiked"
	NameCancel               = "events:cancel"
	NameReschedule           = "events:reschedule"
	NameRescheduleRecurring  = "events:reschedule:recurring"
	NamePostpone             = "events:postpone"
	NamePublished            = "events:published"
	NamePublishedRecurring   = "events:published:recurring"
	NameUnpublished          = "events:unpublished"
	NameUnpublishedRecurring = "events:unpublished:recurring"
	NameSpikedRecurring      = "events:spiked:recurring"
	NameUpdateTime           = "events:update_time"
	NameUpdateTimeRecurring  = "events:update_time:recurring"
)

// Entries returns the name table for router.New. Several names share a handler.
func (h *Handlers) Entries() []router.Entry {
	bind := func(name string, fn notify.Handler) router.Entry {
		return router.Entry{Name: name, Resolve: func() notify.Handler { return fn }}
	}

	return []router.Entry{
		bind(NameCreated, h.Created),
		bind(NameCreatedRecurring, h.RecurringCreated),
		bind(NameUpdated, h.Updated),
		bind(NameUpdatedRecurring, h.Updated),
		bind(NameLock, h.Locked),
		bind(NameUnlock, h.Unlocked),
		bind(NameSpiked, h.Spiked),
		bind(NameUnspiked, h.Unspiked),
		bind(NameCancel, h.Cancelled),
		bind(NameReschedule, h.ScheduleChanged),
		bind(NameRescheduleRecurring, h.ScheduleChanged),
		bind(NamePostpone, h.Postponed),
		bind(NamePublished, h.PublishChanged),
		bind(NamePublishedRecurring, h.PublishChanged),
		bind(NameUnpublished, h.PublishChanged),
		bind(NameUnpublishedRecurring, h.PublishChanged),
		bind(NameSpikedRecurring, h.RecurringSpiked),
		bind(NameUpdateTime, h.ScheduleChanged),
		bind(NameUpdateTimeRecurring, h.ScheduleChanged),
	}
}

// Names lists every notification name handled by this package.
func Names() []string {
	return []string{
		NameCreated, NameCreatedRecurring, NameUpdated, NameUpdatedRecurring,
		NameLock, NameUnlock, NameSpiked, NameUnspiked, NameCancel,
		NameReschedule, NameRescheduleRecurring, NamePostpone,
		NamePublished, NamePublishedRecurring, NameUnpublished, NameUnpublishedRecurring,
		NameSpikedRecurring, NameUpdateTime, NameUpdateTimeRecurring,
	}
}
