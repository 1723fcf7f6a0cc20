/*
Package consumer connects a notification transport to the router.

A Consumer subscribes to a notify.Subscriber, decodes each inbound envelope, restores trace
context from the message headers and routes the notification with the store snapshot accessor.
By default notifications are handled one at a time in arrival order; WithMaxInFlight allows
handlers to interleave, and no handler is ever cancelled by a later notification.
*/
package consumer
