/*
Package schema provides a declarative, composable description of message
payload shapes together with a pure coercion function: Coerce never
mutates its input, it always returns a new value (or an error) so callers
can safely store the coerced form.

Variants mirror spec §3: Const, AnyOf, Bool, Int, Float, Bytes, Text,
BytesOrText (with a charset used to decode bytes into text), List, Tuple,
KeyDict (fixed-key map with an optional-keys set), Dict (open map keyed and
valued by sub-schemas), and Message (a KeyDict that additionally pins
`type` to a constant and injects optional `timestamp`/`api` keys).
*/
package schema
