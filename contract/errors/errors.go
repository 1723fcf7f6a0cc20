package errors

// Error codes for the notify contracts. Keep stable; used across adapters, router and handlers.
const (
	ErrCodeHandlerExists          = "notify.handler_exists"
	ErrCodeHandlerNotFound        = "notify.handler_not_found"
	ErrCodeTransportNotConfigured = "notify.transport_not_configured"
	ErrCodeSubscribeFailed        = "notify.subscribe_failed"
	ErrCodePublishFailed          = "notify.publish_failed"
	ErrCodeDecodeFailed           = "notify.decode_failed"
	ErrCodeSerializationFailed    = "notify.serialization_failed"
	ErrCodeEventNotFound          = "notify.event_not_found"
	ErrCodeQueryFailed            = "notify.query_failed"
	ErrCodeStoreFailed            = "notify.store_failed"
	ErrCodeConsumerClosed         = "notify.consumer_closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerExists          = Code(ErrCodeHandlerExists)
	ErrHandlerNotFound        = Code(ErrCodeHandlerNotFound)
	ErrTransportNotConfigured = Code(ErrCodeTransportNotConfigured)
	ErrSubscribeFailed        = Code(ErrCodeSubscribeFailed)
	ErrPublishFailed          = Code(ErrCodePublishFailed)
	ErrDecodeFailed           = Code(ErrCodeDecodeFailed)
	ErrSerializationFailed    = Code(ErrCodeSerializationFailed)
	ErrEventNotFound          = Code(ErrCodeEventNotFound)
	ErrQueryFailed            = Code(ErrCodeQueryFailed)
	ErrStoreFailed            = Code(ErrCodeStoreFailed)
	ErrConsumerClosed         = Code(ErrCodeConsumerClosed)
)
