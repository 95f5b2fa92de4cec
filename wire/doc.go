/*
Package wire implements the tagged, recursive, self-describing
serialization grammar used both to talk to the historical exchange server
(spec §6.1) and to persist the local message store and metadata tree
(mirroring the original `landscape.lib.bpickle` codec, which serves both
roles in the Python implementation this broker re-implements).

Grammar:

	i<ascii-decimal>;            integer   (int64)
	f<ascii-decimal>;            float     (float64)
	u<byte-length>:<utf-8 bytes> text      (string)
	s<byte-length>:<bytes>       byte string ([]byte)
	b<0|1>                       boolean
	n                            null
	l<count>;<elt>*              list      ([]any)
	d<count>;<key><val>*         map       (map[string]any, key always text)

Values round-trip through plain `any` using int64/float64/bool/nil/string/
[]byte/[]any/map[string]any — the same shape `schema.Coerce` produces, so
payload construction never needs an intermediate representation.
*/
package wire
