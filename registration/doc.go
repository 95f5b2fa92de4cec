// Package registration implements the identity state machine of spec §4.7:
// it decides whether and how to register with the management server,
// queues the register message on pre-exchange, and processes the server's
// set-id, unknown-id, and registration replies.
package registration
