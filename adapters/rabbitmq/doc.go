/*
Package rabbitmq provides a RabbitMQ transport for planning notifications.
It publishes envelopes to a topic exchange through an auto-reconnecting publisher, consumes them
from a bound queue, and supports optional header propagation via a notify.HeaderPropagator.
*/
package rabbitmq
