package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Fault injection
// --------------------------------------------------------------------------

// Op identifies a request issued against the engine. It is passed to the hooks.
type Op string

const (
	OpOpen       Op = "open"
	OpPut        Op = "put"
	OpGet        Op = "get"
	OpDelete     Op = "delete"
	OpGetAllKeys Op = "getAllKeys"
	OpClear      Op = "clear"
)

// OpenHook is called before every Open. A non-nil error fails the open attempt.
// attempt counts the calls to Open for name, starting at 1.
type OpenHook func(name string, attempt int) error

// RequestHook is called before every object operation inside a transaction.
// A non-nil error fails the request (and with it the transaction).
type RequestHook func(op Op, key string) error

// Options configures the memory engine.
type Options struct {
	OnOpen    OpenHook
	OnRequest RequestHook
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is an in-process object store. Databases live as long as the Engine and
// are shared by all connections opened through it.
type Engine struct {
	opts      Options
	databases *xsync.MapOf[string, *database]
	attempts  *xsync.MapOf[string, int]
}

// NewEngine creates an empty memory engine. opts may be nil.
func NewEngine(opts *Options) *Engine {
	e := &Engine{
		databases: xsync.NewMapOf[string, *database](),
		attempts:  xsync.NewMapOf[string, int](),
	}
	if opts != nil {
		e.opts = *opts
	}
	return e
}

type database struct {
	name string

	// mu isolates transactions: read-write and upgrade transactions hold the write lock
	mu          sync.RWMutex
	version     uint64
	collections map[string]*collection

	connMu sync.Mutex
	conns  map[*conn]struct{}
}

type collection struct {
	keyField string
	data     *xsync.MapOf[string, []byte]
}

func (e *Engine) Implementation() engine.Implementation {
	return engine.ImplMemory
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

	attempt, _ := e.attempts.Compute(name, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	if e.opts.OnOpen != nil {
		if err := e.opts.OnOpen(name, attempt); err != nil {
			return nil, err
		}
	}

	db, _ := e.databases.LoadOrCompute(name, func() *database {
		return &database{
			name:        name,
			collections: make(map[string]*collection),
			conns:       make(map[*conn]struct{}),
		}
	})

	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case db.version > version:
		return nil, fmt.Errorf("%w: database '%s' is at version %d, requested %d", engine.ErrVersion, name, db.version, version)
	case db.version < version:
		// other connections must go away before the schema may change
		if n := db.notifyVersionChange(version); n > 0 {
			log.Warningf("open of database '%s' at version %d blocked by %d connection(s)", name, version, n)
			return nil, fmt.Errorf("%w: %d open connection(s) on '%s'", engine.ErrBlocked, n, name)
		}
		up := &upgradeTx{
			oldVersion: db.version,
			newVersion: version,
			existing:   db.collections,
			created:    make(map[string]*collection),
		}
		if upgrade != nil {
			if err := upgrade(up); err != nil {
				return nil, err
			}
		}
		for colName, col := range up.created {
			db.collections[colName] = col
		}
		db.version = version
	}

	c := &conn{
		db:      db,
		hooks:   e.opts.OnRequest,
		version: version,
		hub:     engine.NewEventHub(),
	}
	db.connMu.Lock()
	db.conns[c] = struct{}{}
	db.connMu.Unlock()
	return c, nil
}

// DeleteDatabase removes a database. Open connections receive a version change
// event; as long as any of them stays open the deletion fails with engine.ErrBlocked.
func (e *Engine) DeleteDatabase(name string) error {
	db, ok := e.databases.Load(name)
	if !ok {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if n := db.notifyVersionChange(0); n > 0 {
		return fmt.Errorf("%w: %d open connection(s) on '%s'", engine.ErrBlocked, n, name)
	}
	e.databases.Delete(name)
	return nil
}

// notifyVersionChange sends a version change event to all open connections and
// returns how many there are. The caller holds db.mu.
func (db *database) notifyVersionChange(newVersion uint64) int {
	db.connMu.Lock()
	defer db.connMu.Unlock()
	for c := range db.conns {
		c.hub.Emit(engine.Event{Type: engine.EventVersionChange, OldVersion: db.version, NewVersion: newVersion})
	}
	return len(db.conns)
}

// --------------------------------------------------------------------------
// Upgrade
// --------------------------------------------------------------------------

type upgradeTx struct {
	oldVersion uint64
	newVersion uint64
	existing   map[string]*collection
	created    map[string]*collection
}

func (u *upgradeTx) CreateCollection(name, keyField string) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	if keyField == "" {
		return fmt.Errorf("%w: key field of collection '%s'", engine.ErrInvalidName, name)
	}
	_, inExisting := u.existing[name]
	_, inCreated := u.created[name]
	if inExisting || inCreated {
		return fmt.Errorf("%w: '%s'", engine.ErrCollectionExists, name)
	}
	u.created[name] = &collection{
		keyField: keyField,
		data:     xsync.NewMapOf[string, []byte](),
	}
	return nil
}

func (u *upgradeTx) OldVersion() uint64 { return u.oldVersion }
func (u *upgradeTx) NewVersion() uint64 { return u.newVersion }

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type conn struct {
	db      *database
	hooks   RequestHook
	version uint64
	hub     *engine.EventHub
	closed  atomic.Bool
}

func (c *conn) Transact(ctx context.Context, collection string, mode engine.Mode, fn func(tx engine.ITx) error) error {
	if c.closed.Load() {
		return engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if mode == engine.ModeReadWrite {
		c.db.mu.Lock()
		defer c.db.mu.Unlock()
	} else {
		c.db.mu.RLock()
		defer c.db.mu.RUnlock()
	}

	col, ok := c.db.collections[collection]
	if !ok {
		return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
	}

	t := &tx{
		col:      col,
		writable: mode == engine.ModeReadWrite,
		hooks:    c.hooks,
		pending:  make(map[string][]byte),
	}
	if err := fn(t); err != nil {
		return err
	}
	if t.writable {
		t.commit()
	}
	return nil
}

func (c *conn) Events() <-chan engine.Event {
	return c.hub.Events()
}

func (c *conn) Version() uint64 {
	return c.version
}

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.db.connMu.Lock()
	delete(c.db.conns, c)
	c.db.connMu.Unlock()
	c.hub.Close(c.version)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// tx stages writes and applies them on commit, so a failing transaction leaves no trace.
type tx struct {
	col      *collection
	writable bool
	hooks    RequestHook

	cleared bool
	pending map[string][]byte // nil value marks a deletion
}

func (t *tx) hook(op Op, key string) error {
	if t.hooks == nil {
		return nil
	}
	return t.hooks(op, key)
}

func (t *tx) Put(rec engine.Record) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if rec.Key == "" {
		return engine.ErrEmptyKey
	}
	if err := t.hook(OpPut, rec.Key); err != nil {
		return err
	}
	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	t.pending[rec.Key] = value
	return nil
}

func (t *tx) Get(key string) (engine.Record, bool, error) {
	if err := t.hook(OpGet, key); err != nil {
		return engine.Record{}, false, err
	}
	value, ok := t.lookup(key)
	if !ok {
		return engine.Record{}, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return engine.Record{Key: key, Value: out}, true, nil
}

func (t *tx) Delete(key string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if err := t.hook(OpDelete, key); err != nil {
		return err
	}
	t.pending[key] = nil
	return nil
}

func (t *tx) GetAllKeys() ([]string, error) {
	if err := t.hook(OpGetAllKeys, ""); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	if !t.cleared {
		t.col.data.Range(func(key string, _ []byte) bool {
			if _, staged := t.pending[key]; !staged {
				keys = append(keys, key)
			}
			return true
		})
	}
	for key, value := range t.pending {
		if value != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *tx) Clear() error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	if err := t.hook(OpClear, ""); err != nil {
		return err
	}
	t.cleared = true
	t.pending = make(map[string][]byte)
	return nil
}

func (t *tx) lookup(key string) ([]byte, bool) {
	if value, staged := t.pending[key]; staged {
		return value, value != nil
	}
	if t.cleared {
		return nil, false
	}
	return t.col.data.Load(key)
}

func (t *tx) commit() {
	if t.cleared {
		t.col.data.Clear()
	}
	for key, value := range t.pending {
		if value == nil {
			t.col.data.Delete(key)
		} else {
			t.col.data.Store(key, value)
		}
	}
}
