// Package handlers implements the HTTP API surface: tone shifting
// routes, cache management routes, and health endpoints.
package handlers
