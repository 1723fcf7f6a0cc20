/*
Package router maps notification names to handlers.
Handlers are resolved through an indirection at dispatch time so a binding can be replaced
without rebuilding the table.
*/
package router
