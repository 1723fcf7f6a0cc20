// Package listview derives what an events list row shows from a record and the lock registry.
package listview

import "github.com/next-trace/scg-planning-notify/contract/notify"

// Border states of a list row.
const (
	BorderNone   = ""
	BorderLocked = "locked"
	BorderActive = "active"
)

// FilterCombined is the combined events and planning list filter.
const FilterCombined = "COMBINED"

// Label is a state badge.
type Label struct {
	Text string
	Icon string
}

var workflowLabels = map[string]Label{
	notify.StateDraft:       {Text: "Draft", Icon: "gray"},
	notify.StateIngested:    {Text: "Ingested", Icon: "gray"},
	notify.StateScheduled:   {Text: "Scheduled", Icon: "success"},
	notify.StateKilled:      {Text: "Killed", Icon: "alert"},
	notify.StateCancelled:   {Text: "Cancelled", Icon: "alert"},
	notify.StateRescheduled: {Text: "Rescheduled", Icon: "warning"},
	notify.StatePostponed:   {Text: "Postponed", Icon: "warning"},
	notify.StateSpiked:      {Text: "Spiked", Icon: "alert"},
}

// Row is the derived view of one list item.
type Row struct {
	ID     string
	Border string
	State  Label
	// Actioned is set when the event was rescheduled from another one.
	Actioned *Label
	// LockedHere reports a lock held by the viewing session.
	LockedHere              bool
	Expired                 bool
	Public                  bool
	HasLocation             bool
	HasCheck                bool
	ShowRelatedPlanningLink bool
}

// Derive computes the row for e. A lock takes precedence over planning coverage for the border.
func Derive(e notify.Event, locks map[string]notify.Lock, session, filter string) Row {
	lock, locked := notify.LockOf(e, locks)
	hasPlanning := e.HasPlanning()

	r := Row{
		ID:                      e.ID,
		State:                   StateLabel(e),
		LockedHere:              locked && session != "" && lock.Session == session,
		Expired:                 e.Expired,
		Public:                  e.PubStatus == notify.PubStatusUsable,
		HasLocation:             e.Location != nil && (e.Location.Name != "" || e.Location.FormattedAddress != ""),
		HasCheck:                filter != FilterCombined,
		ShowRelatedPlanningLink: filter == FilterCombined && hasPlanning,
	}

	switch {
	case locked:
		r.Border = BorderLocked
	case hasPlanning:
		r.Border = BorderActive
	default:
		r.Border = BorderNone
	}

	if e.RescheduleFrom != "" {
		r.Actioned = &Label{Text: "Rescheduled From", Icon: "warning"}
	}

	return r
}

// StateLabel is the workflow state badge. An unset state reads as draft.
func StateLabel(e notify.Event) Label {
	if l, ok := workflowLabels[e.State]; ok {
		return l
	}

	if e.State == "" {
		return workflowLabels[notify.StateDraft]
	}

	return Label{Text: e.State, Icon: "gray"}
}
