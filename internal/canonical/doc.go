// Package canonical provides the canonical JSON encoding and the
// content-addressed digests used for binary headers, cache keys and golden
// traces.
//
// Canonical JSON follows RFC 8785 for the value types used here:
//   - Object keys sorted by UTF-16 code units
//   - No insignificant whitespace, no HTML escaping
//   - Strings NFC normalized
//   - No floats, no null
package canonical
