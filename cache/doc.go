// Package cache implements the tone response cache: deterministic key
// derivation over normalized request triples, and a persistent store of
// cache entries with two-tier visibility (global vs. per-identity),
// fixed TTL expiry, and atomic hit counters.
//
// Four drivers implement the [Store] contract:
//
//   - GormStore  — relational storage (postgres/mysql/sqlite) with a
//     composite unique index on (cache_key, owner)
//   - RedisStore — JSON entries with native TTL and a Lua-scripted
//     atomic hit increment
//   - MongoStore — mirrors the original MongoDB document layout
//   - MemoryStore — mutex-guarded map for development and tests
//
// Lookups fall back from the owner scope to the global scope. Expired
// entries are logically absent from lookups even before they are
// physically removed; SweepExpired reclaims them in bulk.
package cache
