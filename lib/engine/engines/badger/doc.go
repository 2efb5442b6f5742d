// Package badger implements engine.IEngine on top of Badger (github.com/dgraph-io/badger/v3).
//
// Each database is a Badger directory <dir>/<name>. Records of a collection are
// stored under the prefix 0x01 <collection> 0x00, metadata (schema version, key
// fields) under keys starting with 0x00, so collections never overlap.
//
// Read-only transactions map to db.View and read-write transactions to db.Update.
// Badger's directory lock makes a second Open of the same database fail with
// engine.ErrBlocked. Badger's internal messages are logged through the "badger" logger.
package badger
