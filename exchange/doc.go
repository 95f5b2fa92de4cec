// Package exchange implements the Message Exchange of spec §4.5/§4.6: the
// central state machine that schedules HTTPS round-trips against the
// store's pending messages, interprets the server's response (sequence
// advancement, resynchronization, rewind), dispatches server-originated
// messages via the reactor's "message" event, and regulates its own cadence
// between a normal and an urgent interval.
package exchange
