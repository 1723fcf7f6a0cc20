package store

import (
	"fmt"
	"slices"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// reduce applies a to s in place and returns the ids of records it wrote.
func reduce(s *notify.State, a notify.Action) ([]string, error) {
	switch p := a.Payload.(type) {
	case notify.EventPayload:
		return reduceEvent(s, a.Type, p)
	case notify.RecurringSpikePayload:
		return reduceRecurringSpike(s, p), nil
	case notify.PublishPayload:
		return reducePublish(s, p), nil
	case notify.Cancellation:
		return reduceCancel(s, p), nil
	case notify.PostponePayload:
		return reducePostpone(s, p), nil
	case notify.EventsPayload:
		return upsert(s, p.Events), nil
	case notify.ListPayload:
		return nil, reduceList(s, a.Type, p)
	case notify.ModalPayload:
		m := p.Modal
		s.Modal = &m

		return nil, nil
	case notify.ClosePayload:
		return nil, reduceClose(s, a.Type, p)
	case notify.ItemPayload:
		return nil, reduceOpen(s, a.Type, p)
	case notify.SpikeStatePayload:
		s.SpikeState = p.SpikeState
		return nil, nil
	case notify.UsersPayload:
		s.Users = mergeUsers(s.Users, p.Users)
		return nil, nil
	case notify.LocksPayload:
		for id, l := range p.Locks {
			s.Locks[id] = l
		}

		return nil, nil
	case nil:
		if a.Type == notify.ActionHideModal {
			s.Modal = nil
			return nil, nil
		}
	}

	return nil, fmt.Errorf("reduce %s (%T): %w", a.Type, a.Payload, nerr.ErrStoreFailed)
}

func reduceEvent(s *notify.State, typ string, p notify.EventPayload) ([]string, error) {
	e := p.Event
	if e.ID == "" {
		return nil, fmt.Errorf("reduce %s: record without id: %w", typ, nerr.ErrStoreFailed)
	}

	switch typ {
	case notify.ActionLockEvent:
		s.Locks[e.ID] = notify.Lock{User: e.LockUser, Session: e.LockSession, Action: e.LockAction, Time: e.LockTime}
	case notify.ActionUnlockEvent:
		delete(s.Locks, e.ID)
	case notify.ActionSpikeEvent:
		delete(s.Locks, e.ID)

		if p.SpikeState == notify.SpikedStateNotSpiked {
			s.EventsList = without(s.EventsList, e.ID)
		}
	case notify.ActionUnspikeEvent:
		delete(s.Locks, e.ID)

		if p.SpikeState == notify.SpikedStateSpiked {
			s.EventsList = without(s.EventsList, e.ID)
		}
	default:
		return nil, fmt.Errorf("reduce %s: %w", typ, nerr.ErrStoreFailed)
	}

	s.Events[e.ID] = e

	return []string{e.ID}, nil
}

func reduceRecurringSpike(s *notify.State, p notify.RecurringSpikePayload) []string {
	ids := make([]string, 0, len(p.Events))

	for _, in := range p.Events {
		if in.ID == "" {
			continue
		}

		e, ok := s.Events[in.ID]
		if !ok {
			e = in
		}

		e = e.ClearLock()
		e.State = notify.StateSpiked
		e.RevertState = in.RevertState

		if in.ETag != "" {
			e.ETag = in.ETag
		}

		s.Events[e.ID] = e
		delete(s.Locks, e.ID)
		ids = append(ids, e.ID)

		if p.SpikeState == notify.SpikedStateNotSpiked {
			s.EventsList = without(s.EventsList, e.ID)
		}
	}

	return ids
}

func reducePublish(s *notify.State, p notify.PublishPayload) []string {
	var ids []string

	for _, ref := range p.Items {
		e, ok := s.Events[ref.ID]
		if !ok {
			continue
		}

		e.State = p.State
		e.PubStatus = p.PubStatus

		if ref.ETag != "" {
			e.ETag = ref.ETag
		}

		s.Events[e.ID] = e
		ids = append(ids, e.ID)
	}

	return ids
}

func reduceCancel(s *notify.State, c notify.Cancellation) []string {
	var ids []string

	for _, id := range append([]string{c.ID}, c.CancelledItems...) {
		e, ok := s.Events[id]
		if !ok {
			continue
		}

		e = e.ClearLock()
		e.State = notify.StateCancelled
		e.Reason = c.Reason

		if c.OccurStatus != nil {
			st := *c.OccurStatus
			e.OccurStatus = &st
		}

		if id == c.ID && c.ETag != "" {
			e.ETag = c.ETag
		}

		s.Events[id] = e
		delete(s.Locks, id)
		ids = append(ids, id)
	}

	return ids
}

func reducePostpone(s *notify.State, p notify.PostponePayload) []string {
	e, ok := s.Events[p.Event.ID]
	if !ok {
		e = p.Event
	}

	e = e.ClearLock()
	e.State = notify.StatePostponed
	e.Reason = p.Reason

	if e.ID == "" {
		return nil
	}

	s.Events[e.ID] = e
	delete(s.Locks, e.ID)

	return []string{e.ID}
}

func upsert(s *notify.State, events []notify.Event) []string {
	ids := make([]string, 0, len(events))

	for _, e := range events {
		if e.ID == "" {
			continue
		}

		s.Events[e.ID] = e
		ids = append(ids, e.ID)
	}

	return ids
}

func reduceList(s *notify.State, typ string, p notify.ListPayload) error {
	switch typ {
	case notify.ActionSetEventsList:
		s.EventsList = slices.Clone(p.IDs)
	case notify.ActionSetCombinedList:
		s.Combined = slices.Clone(p.IDs)
	case notify.ActionSelectEvents:
		for _, id := range p.IDs {
			if id != "" && !slices.Contains(s.Selected, id) {
				s.Selected = append(s.Selected, id)
			}
		}
	case notify.ActionDeselectEvents:
		s.Selected = slices.DeleteFunc(s.Selected, func(id string) bool { return slices.Contains(p.IDs, id) })
	default:
		return fmt.Errorf("reduce %s: %w", typ, nerr.ErrStoreFailed)
	}

	return nil
}

func reduceClose(s *notify.State, typ string, p notify.ClosePayload) error {
	switch typ {
	case notify.ActionClosePreview:
		if s.PreviewID == p.ID {
			s.PreviewID = ""
		}
	case notify.ActionCloseEditor:
		if s.EditID == p.ID {
			s.EditID = ""
		}
	default:
		return fmt.Errorf("reduce %s: %w", typ, nerr.ErrStoreFailed)
	}

	return nil
}

func reduceOpen(s *notify.State, typ string, p notify.ItemPayload) error {
	switch typ {
	case notify.ActionOpenPreview:
		s.PreviewID = p.ID
	case notify.ActionOpenEditor:
		s.EditID = p.ID
	default:
		return fmt.Errorf("reduce %s: %w", typ, nerr.ErrStoreFailed)
	}

	return nil
}

func mergeUsers(have, in []notify.User) []notify.User {
	out := slices.Clone(have)

	for _, u := range in {
		i := slices.IndexFunc(out, func(x notify.User) bool { return x.ID == u.ID })
		if i >= 0 {
			out[i] = u
			continue
		}

		out = append(out, u)
	}

	return out
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(x string) bool { return x == id })
}
