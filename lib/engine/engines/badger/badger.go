package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/dgraph-io/badger/v3"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine")

// Badger's own messages go to a separate logger, they are very chatty on INFO.
var badgerLog = logger.GetLogger("badger")

// Key layout inside one Badger directory:
//
//	\x00meta\x00version              -> uint64 big endian schema version
//	\x00meta\x00collection\x00<name> -> key field of the collection
//	\x01<name>\x00<key>              -> record value
var (
	versionKey       = []byte("\x00meta\x00version")
	collectionPrefix = []byte("\x00meta\x00collection\x00")
)

const recordMarker = 0x01

// Options configures the badger engine.
type Options struct {
	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool
	// NumVersionsToKeep is passed to Badger, 1 keeps only the latest value.
	NumVersionsToKeep int
	// MemTableSize is passed to Badger if greater than 0. It also bounds the
	// size of a single transaction.
	MemTableSize int64
}

// DefaultOptions returns the default badger engine options.
func DefaultOptions() *Options {
	return &Options{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
	}
}

// Engine stores every database in its own Badger directory inside a directory.
type Engine struct {
	dir  string
	opts Options
}

// NewEngine creates a badger engine rooted at dir. opts may be nil.
func NewEngine(dir string, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Engine{dir: dir, opts: *opts}
}

func (e *Engine) Implementation() engine.Implementation {
	return engine.ImplBadger
}

// Path returns the directory backing the database name.
func (e *Engine) Path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *Engine) Open(ctx context.Context, name string, version uint64, upgrade engine.UpgradeFunc) (engine.IConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := engine.ValidateName(name); err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: version must be greater than 0", engine.ErrVersion)
	}

	path := e.Path(name)
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(e.opts.SyncWrites).
		WithNumVersionsToKeep(e.opts.NumVersionsToKeep).
		WithLogger(badgerLog)
	if e.opts.MemTableSize > 0 {
		// badger refuses a value threshold above its batch size of 15% of the memtable
		opts = opts.WithMemTableSize(e.opts.MemTableSize).
			WithValueThreshold(min(opts.ValueThreshold, 15*e.opts.MemTableSize/100))
	}

	db, err := badger.Open(opts)
	if err != nil {
		// badger has no sentinel for a held directory lock
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("%w: %v", engine.ErrBlocked, err)
		}
		return nil, fmt.Errorf("badger: open %s: %w", path, err)
	}

	err = db.Update(func(txn *badger.Txn) error {
		stored, err := readVersion(txn)
		if err != nil {
			return err
		}
		switch {
		case stored > version:
			return fmt.Errorf("%w: database '%s' is at version %d, requested %d", engine.ErrVersion, name, stored, version)
		case stored == version:
			return nil
		}

		log.Infof("upgrading database '%s' from version %d to %d", name, stored, version)
		if upgrade != nil {
			if err := upgrade(&upgradeTx{txn: txn, oldVersion: stored, newVersion: version}); err != nil {
				return err
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return txn.Set(versionKey, buf)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debugf("opened database '%s' (%s)", name, path)
	return &conn{
		db:      db,
		version: version,
		hub:     engine.NewEventHub(),
	}, nil
}

func readVersion(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(versionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("badger: corrupt version entry of %d bytes", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func collectionKey(name string) []byte {
	return append(append([]byte{}, collectionPrefix...), name...)
}

func recordPrefix(collection string) []byte {
	p := make([]byte, 0, len(collection)+2)
	p = append(p, recordMarker)
	p = append(p, collection...)
	return append(p, 0x00)
}

// --------------------------------------------------------------------------
// Upgrade
// --------------------------------------------------------------------------

type upgradeTx struct {
	txn        *badger.Txn
	oldVersion uint64
	newVersion uint64
}

func (u *upgradeTx) CreateCollection(name, keyField string) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	if keyField == "" {
		return fmt.Errorf("%w: key field of collection '%s'", engine.ErrInvalidName, name)
	}
	key := collectionKey(name)
	if _, err := u.txn.Get(key); err == nil {
		return fmt.Errorf("%w: '%s'", engine.ErrCollectionExists, name)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return u.txn.Set(key, []byte(keyField))
}

func (u *upgradeTx) OldVersion() uint64 { return u.oldVersion }
func (u *upgradeTx) NewVersion() uint64 { return u.newVersion }

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type conn struct {
	db      *badger.DB
	version uint64
	hub     *engine.EventHub
}

func (c *conn) Transact(ctx context.Context, collection string, mode engine.Mode, fn func(tx engine.ITx) error) error {
	if c.hub.Closed() || c.db.IsClosed() {
		return engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	run := c.db.View
	if mode == engine.ModeReadWrite {
		run = c.db.Update
	}
	err := run(func(txn *badger.Txn) error {
		if _, err := txn.Get(collectionKey(collection)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
		} else if err != nil {
			return err
		}
		return fn(&tx{
			txn:      txn,
			prefix:   recordPrefix(collection),
			writable: mode == engine.ModeReadWrite,
		})
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return engine.ErrClosed
	}
	return err
}

// Truncate drops the records of collection with DropPrefix, which is not
// limited by the transaction size like tx.Clear.
func (c *conn) Truncate(ctx context.Context, collection string) error {
	if c.hub.Closed() || c.db.IsClosed() {
		return engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(collectionKey(collection))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
		}
		return err
	})
	if err == nil {
		err = c.db.DropPrefix(recordPrefix(collection))
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return engine.ErrClosed
	}
	return err
}

func (c *conn) Events() <-chan engine.Event {
	return c.hub.Events()
}

func (c *conn) Version() uint64 {
	return c.version
}

func (c *conn) Close() error {
	if !c.hub.Close(c.version) {
		return nil
	}
	return c.db.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type tx struct {
	txn      *badger.Txn
	prefix   []byte
	writable bool
}

func (t *tx) key(key string) []byte {
	return append(append(make([]byte, 0, len(t.prefix)+len(key)), t.prefix...), key...)
}

func (t *tx) Put(rec engine.Record) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if rec.Key == "" {
		return engine.ErrEmptyKey
	}
	return t.txn.Set(t.key(rec.Key), rec.Value)
}

func (t *tx) Get(key string) (engine.Record, bool, error) {
	item, err := t.txn.Get(t.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return engine.Record{}, false, nil
	}
	if err != nil {
		return engine.Record{}, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return engine.Record{}, false, err
	}
	return engine.Record{Key: key, Value: value}, true, nil
}

func (t *tx) Delete(key string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if key == "" {
		return nil
	}
	return t.txn.Delete(t.key(key))
}

func (t *tx) GetAllKeys() ([]string, error) {
	keys := make([]string, 0)
	err := t.scan(func(key []byte) error {
		keys = append(keys, string(key[len(t.prefix):]))
		return nil
	})
	return keys, err
}

func (t *tx) Clear() error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	var toDelete [][]byte
	if err := t.scan(func(key []byte) error {
		toDelete = append(toDelete, append([]byte{}, key...))
		return nil
	}); err != nil {
		return err
	}
	for _, key := range toDelete {
		if err := t.txn.Delete(key); err != nil {
			if errors.Is(err, badger.ErrTxnTooBig) {
				return fmt.Errorf("%w: clearing %d records: %v", engine.ErrTooLarge, len(toDelete), err)
			}
			return err
		}
	}
	return nil
}

// scan calls fn with every record key of the collection. The key is only valid during the call.
func (t *tx) scan(fn func(key []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = t.prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := fn(it.Item().Key()); err != nil {
			return err
		}
	}
	return nil
}
