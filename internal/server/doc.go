// Package server hosts the HTTP API: the /ws streaming endpoint, the
// /recognize one-shot upload endpoint, /health, /metrics, and a small
// static test client at /.
package server
