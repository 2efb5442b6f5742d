package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"
)

var log = logger.GetLogger("engine")

var (
	metaBucket       = []byte("__meta")
	versionKey       = []byte("version")
	collectionPrefix = "collection/"
)

const fileSuffix = ".db"

// Options configures the bolt engine.
type Options struct {
	// Timeout is how long Open waits for the file lock held by another connection.
	// bbolt waits forever on zero, so a zero value is replaced by DefaultOptions().Timeout.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only useful for tests.
	NoSync bool
}

// DefaultOptions returns the default bolt engine options.
func DefaultOptions() *Options {
	return &Options{
		Timeout: 100 * time.Millisecond,
	}
}

// Engine stores every database in its own bbolt file inside a directory.
type Engine struct {
	dir  string
	opts Options
}

// NewEngine creates a bolt engine rooted at dir. opts may be nil.
func NewEngine(dir string, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions().Timeout
	}
	return &Engine{dir: dir, opts: o}
}

func (e *Engine) Implementation() engine.Implementation {
	return engine.ImplBolt
}

// Path returns the file backing the database name.
func (e *Engine) Path(name string) string {
	return filepath.Join(e.dir, name+fileSuffix)
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

	if err := os.MkdirAll(e.dir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", e.dir, err)
	}

	path := e.Path(name)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: e.opts.Timeout, NoSync: e.opts.NoSync})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: file lock on %s", engine.ErrBlocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		var stored uint64
		if v := meta.Get(versionKey); len(v) == 8 {
			stored = binary.BigEndian.Uint64(v)
		}
		switch {
		case stored > version:
			return fmt.Errorf("%w: database '%s' is at version %d, requested %d", engine.ErrVersion, name, stored, version)
		case stored == version:
			return nil
		}

		log.Infof("upgrading database '%s' from version %d to %d", name, stored, version)
		if upgrade != nil {
			if err := upgrade(&upgradeTx{tx: tx, meta: meta, oldVersion: stored, newVersion: version}); err != nil {
				return err
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return meta.Put(versionKey, buf)
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

// --------------------------------------------------------------------------
// Upgrade
// --------------------------------------------------------------------------

type upgradeTx struct {
	tx         *bolt.Tx
	meta       *bolt.Bucket
	oldVersion uint64
	newVersion uint64
}

func (u *upgradeTx) CreateCollection(name, keyField string) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	if name == string(metaBucket) || keyField == "" {
		return fmt.Errorf("%w: collection '%s' with key field '%s'", engine.ErrInvalidName, name, keyField)
	}
	_, err := u.tx.CreateBucket([]byte(name))
	if errors.Is(err, bolt.ErrBucketExists) {
		return fmt.Errorf("%w: '%s'", engine.ErrCollectionExists, name)
	}
	if err != nil {
		return err
	}
	return u.meta.Put([]byte(collectionPrefix+name), []byte(keyField))
}

func (u *upgradeTx) OldVersion() uint64 { return u.oldVersion }
func (u *upgradeTx) NewVersion() uint64 { return u.newVersion }

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type conn struct {
	db      *bolt.DB
	version uint64
	hub     *engine.EventHub
}

func (c *conn) Transact(ctx context.Context, collection string, mode engine.Mode, fn func(tx engine.ITx) error) error {
	if c.hub.Closed() {
		return engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	run := c.db.View
	if mode == engine.ModeReadWrite {
		run = c.db.Update
	}
	err := run(func(btx *bolt.Tx) error {
		if collection == string(metaBucket) {
			return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
		}
		b := btx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
		}
		return fn(&tx{btx: btx, bucket: b, name: []byte(collection), writable: mode == engine.ModeReadWrite})
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
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
	btx      *bolt.Tx
	bucket   *bolt.Bucket
	name     []byte
	writable bool
}

func (t *tx) Put(rec engine.Record) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if rec.Key == "" {
		return engine.ErrEmptyKey
	}
	value := rec.Value
	if value == nil {
		value = []byte{}
	}
	return t.bucket.Put([]byte(rec.Key), value)
}

func (t *tx) Get(key string) (engine.Record, bool, error) {
	if key == "" {
		return engine.Record{}, false, nil
	}
	v := t.bucket.Get([]byte(key))
	if v == nil {
		return engine.Record{}, false, nil
	}
	// values are only valid for the life of the bolt transaction
	value := make([]byte, len(v))
	copy(value, v)
	return engine.Record{Key: key, Value: value}, true, nil
}

func (t *tx) Delete(key string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if key == "" {
		return nil
	}
	return t.bucket.Delete([]byte(key))
}

func (t *tx) GetAllKeys() ([]string, error) {
	keys := make([]string, 0)
	err := t.bucket.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys, err
}

func (t *tx) Clear() error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if err := t.btx.DeleteBucket(t.name); err != nil {
		return err
	}
	b, err := t.btx.CreateBucket(t.name)
	if err != nil {
		return err
	}
	t.bucket = b
	return nil
}
