/*
Package events reacts to server push notifications about editorial planning Event records.

Each notification name maps to one handler; several names share a handler. Handlers read the
store through a state accessor at every step, because list refreshes and API calls may change
the store while they wait.

Typical wiring:

	h := events.New(events.Deps{Store: st, API: client, Lists: client, UI: ctrl, Notifier: n})
	r, err := router.New(h.Entries())
*/
package events
