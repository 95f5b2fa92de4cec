// Package transport implements the outbound leg of the exchange protocol
// (spec §4.1.D/§6.1): an HTTPS POST of a bpickle-framed payload, with the
// required X-Message-API/X-Computer-ID/X-Exchange-Token headers and TLS
// validated against a configured CA file.
package transport
