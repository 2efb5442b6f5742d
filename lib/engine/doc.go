// Package engine defines the boundary between the key-value store and the embedded
// transactional object store it persists into.
//
// The model is deliberately small and mirrors the object-store engines found in
// browsers:
//
//   - IEngine: opens a named database at a schema version. If the stored version is
//     lower than the requested one (a missing database counts as version 0), the
//     engine runs an UpgradeFunc inside a single upgrade transaction. Collections can
//     only be created there.
//
//   - IConn: an open connection. Every request runs in its own transaction created
//     with Transact, either read-only or read-write. A connection reports lifecycle
//     events (close, version change) on its Events channel.
//
//   - ITx: the per-transaction object operations Put, Get, Delete, GetAllKeys and Clear.
//
// Errors reported by engines are plain values wrapped around the sentinels of this
// package (ErrBlocked, ErrVersion, ErrClosed, ...) so that callers can test them with
// errors.Is.
//
// Implementations:
//
//   - engines/memory: process-local databases on xsync maps, with fault injection for tests.
//   - engines/bolt: one bbolt file per database, one bucket per collection.
//   - engines/badger: one Badger directory per database, collections as key prefixes.
//   - engines/sqlite: one SQLite file per database, one table per collection.
//
// The testing package (github.com/ValentinKolb/offlinedb/lib/engine/testing) contains
// a conformance suite all implementations are run against.
package engine
