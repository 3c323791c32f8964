// Package config loads and validates server configuration from environment
// variables, clamping soft-bounded fields to documented ranges and rejecting
// fields with no sensible default.
package config
