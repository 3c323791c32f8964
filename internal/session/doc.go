// Package session drives a single connection's recognition lifecycle: it
// windows incoming audio into the voice-activity detector, pulls finished
// segments through the recognizer pool, and renders interim, final, and
// done messages as JSON.
package session
