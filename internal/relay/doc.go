// Package relay implements the session relay core: the session data
// model and registry, payload sanitization, the protocol dispatcher,
// connection lifecycle, and the supervisor loops.
package relay
