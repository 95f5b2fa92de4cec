// Package store implements the on-disk outbound message queue described in
// spec §3/§4.3: a bucketed directory of individually-encoded messages plus a
// small set of persisted cursors (sequence, pending offset, server sequence,
// accepted types) that together decide what is pending, held, or acknowledged.
//
// Held messages are never stored as such: whether a message at or past the
// pending offset counts as held is recomputed on every read from the current
// accepted-types set, which is what makes set_accepted_types idempotent and
// "rejoin the pending stream" free.
package store
