// Package metrics exports Prometheus series for the recognition pipeline,
// connection lifecycle, and per-segment decoding, under the gigaam_
// namespace.
package metrics
