/*
Package notify holds the contracts shared by the notification pipeline: the wire envelope,
payload and record types, store actions and snapshots, and the collaborator interfaces
(events API, lists, UI, transports) that concrete packages implement.
*/
package notify
