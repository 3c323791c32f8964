// Package stream tracks live connections, pairing each with its own
// Session and VAD instance, and evicts connections that go idle past a
// configured timeout.
package stream
