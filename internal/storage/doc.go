// Package storage provides the persistent dedup and audit backends.
//
// Drivers:
//   - "file": in-memory map backed by a JSON Lines journal plus a snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// Both implement dedup.Store, so the dedup window works the same on either.
package storage
