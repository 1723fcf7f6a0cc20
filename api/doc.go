// Package api serves event records to the notification handlers from a SQLite-backed search
// index and mirrors list pages into the client store.
package api
