// Package pinger implements the cheap periodic probe of spec §2 row I: a
// HEAD request against the server's ping endpoint, rate-limited, that
// triggers an urgent exchange the moment the server signals it has data
// waiting for us. It never touches the Message Store or Identity directly;
// it only calls Exchanger.ScheduleExchange.
package pinger
