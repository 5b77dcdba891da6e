// Command toneflow runs the tone transformation service: an HTTP API
// that rewrites text in a requested tone via an upstream LLM, fronted
// by a deduplicating response cache with per-identity scoping.
package main
