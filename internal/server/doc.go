// Package server manages the HTTP server lifecycle: listener setup,
// non-blocking start, signal handling, and graceful shutdown.
package server
