// Package types defines shared primitives used across toneflow:
// the unified error code taxonomy and the structured [Error] type.
//
// Errors are classified along the boundary that matters operationally:
// validation errors (the caller's fault, never retried), upstream errors
// (the model provider failed, fatal for the request), and store errors
// (the cache failed, recovered by failing open). Handlers map codes to
// HTTP statuses in one place.
package types
