// Package reactor implements the single-threaded cooperative dispatcher of
// spec §4.8: timers (call_later/call_every), named events with
// priority-ordered handlers (call_on/fire), and thread offload for the one
// piece of genuinely blocking work in the broker, the transport round-trip
// (call_in_thread/call_in_main). Everything except that offloaded work runs
// on a single goroutine, the "reactor thread", so no locking is required
// around the store, exchange, or identity components it drives.
package reactor
