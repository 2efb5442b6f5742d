package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplBolt   Implementation = "bolt"
	ImplBadger Implementation = "badger"
	ImplSQLite Implementation = "sqlite"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ModeReadOnly  Mode = iota // Transaction may only read
	ModeReadWrite             // Transaction may read and write
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "readonly"
	case ModeReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Record is a single entry of a collection. Key is the primary key of the record.
type Record struct {
	Key   string
	Value []byte
}

// EventType identifies a connection lifecycle event.
type EventType int

const (
	// EventClose is emitted once when the connection is closed. The event channel
	// is closed right after it.
	EventClose EventType = iota
	// EventVersionChange is emitted when another connection wants to upgrade the
	// database. The receiver should close its connection.
	EventVersionChange
)

func (t EventType) String() string {
	switch t {
	case EventClose:
		return "close"
	case EventVersionChange:
		return "versionchange"
	default:
		return "unknown"
	}
}

// Event is a connection lifecycle event.
type Event struct {
	Type       EventType
	OldVersion uint64
	NewVersion uint64 // only set for EventVersionChange
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrBlocked is returned by Open if another connection prevents this one from being opened.
	ErrBlocked = errors.New("database is blocked by another connection")
	// ErrVersion is returned by Open if the stored schema version is newer than the requested one.
	ErrVersion = errors.New("requested version is lower than the stored version")
	// ErrClosed is returned when a closed connection is used.
	ErrClosed = errors.New("connection is closed")
	// ErrNoCollection is returned when a transaction targets an unknown collection.
	ErrNoCollection = errors.New("collection does not exist")
	// ErrCollectionExists is returned when an upgrade creates a collection twice.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrReadOnly is returned when a read-only transaction attempts to write.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrEmptyKey is returned when a record has no key.
	ErrEmptyKey = errors.New("key must not be empty")
	// ErrInvalidName is returned for database or collection names an engine cannot store.
	ErrInvalidName = errors.New("invalid name")
	// ErrTooLarge is returned when a transaction exceeds the size an engine can commit at once.
	ErrTooLarge = errors.New("transaction is too large")
)

// ValidateName checks that a database or collection name is usable as a file or
// directory name by all engines.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// UpgradeFunc is called by IEngine.Open when the stored version of a database is
// lower than the requested one (a database that does not exist has version 0).
// It runs inside the upgrade transaction: if it returns an error, the upgrade is
// rolled back and Open fails with that error.
type UpgradeFunc func(up IUpgrade) error

// IUpgrade is handed to an UpgradeFunc. It is the only place where collections can be created.
type IUpgrade interface {
	// CreateCollection creates a collection whose records are keyed by keyField.
	CreateCollection(name, keyField string) (err error)
	// OldVersion is the version stored before the upgrade (0 for a new database).
	OldVersion() (version uint64)
	// NewVersion is the version being opened.
	NewVersion() (version uint64)
}

// IEngine is an embedded transactional object store that hands out connections to
// named, versioned databases.
type IEngine interface {
	// Open opens the database name at version, creating it if necessary.
	// upgrade is called if the stored version is lower than version.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (conn IConn, err error)

	// Implementation returns the engine identifier.
	Implementation() (impl Implementation)
}

// IConn is an open database connection.
type IConn interface {
	// Transact runs fn inside a single transaction on the given collection.
	// Read-write transactions are committed if fn returns nil and rolled back otherwise.
	// The error returned by fn is returned unmodified.
	Transact(ctx context.Context, collection string, mode Mode, fn func(tx ITx) error) (err error)

	// Events delivers lifecycle events. The channel is closed after EventClose.
	Events() (events <-chan Event)

	// Version returns the schema version the connection was opened with.
	Version() (version uint64)

	// Close closes the connection. Closing an already closed connection is a no-op.
	Close() (err error)
}

// ITruncater is implemented by connections that can drop all records of a
// collection without holding them in one transaction. Writes to the database
// are blocked while Truncate runs.
type ITruncater interface {
	// Truncate removes all records from the collection.
	Truncate(ctx context.Context, collection string) (err error)
}

// ITx is a transaction scoped to one collection. It must not be used after the
// function passed to IConn.Transact has returned.
type ITx interface {
	// Put inserts or overwrites the record with rec.Key.
	Put(rec Record) (err error)
	// Get returns the record for key. found is false if no record matches.
	Get(key string) (rec Record, found bool, err error)
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// GetAllKeys returns the keys of all records in the collection.
	GetAllKeys() (keys []string, err error)
	// Clear removes all records from the collection.
	// Engines with a bounded transaction size return ErrTooLarge if the
	// collection does not fit, in which case nothing is removed.
	Clear() (err error)
}
