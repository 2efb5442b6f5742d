package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-sqlite3"
)

var log = logger.GetLogger("engine")

const (
	fileSuffix       = ".sqlite"
	collectionsTable = "_collections"
	tablePrefix      = "c_"
	valueColumn      = "value"
)

// Options configures the sqlite engine.
type Options struct {
	// BusyTimeout is how long SQLite waits for a lock held by another connection
	// before the open (or a transaction) fails.
	BusyTimeout time.Duration
}

// DefaultOptions returns the default sqlite engine options.
func DefaultOptions() *Options {
	return &Options{
		BusyTimeout: 100 * time.Millisecond,
	}
}

// Engine stores every database in its own SQLite file inside a directory.
type Engine struct {
	dir  string
	opts Options
}

// NewEngine creates a sqlite engine rooted at dir. opts may be nil.
func NewEngine(dir string, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Engine{dir: dir, opts: *opts}
}

func (e *Engine) Implementation() engine.Implementation {
	return engine.ImplSQLite
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
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, e.opts.BusyTimeout); err != nil {
		_ = db.Close()
		return nil, mapError(err)
	}
	if err := applyUpgrade(ctx, db, name, version, upgrade); err != nil {
		_ = db.Close()
		return nil, mapError(err)
	}

	log.Debugf("opened database '%s' (%s)", name, path)
	return &conn{
		db:      db,
		version: version,
		hub:     engine.NewEventHub(),
	}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applyUpgrade compares PRAGMA user_version with version and runs upgrade in a
// single transaction if the database is older.
func applyUpgrade(ctx context.Context, db *sql.DB, name string, version uint64, upgrade engine.UpgradeFunc) error {
	// BEGIN IMMEDIATE takes the write lock up front so two openers cannot both upgrade
	sqlConn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer sqlConn.Close()

	if _, err := sqlConn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = sqlConn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var stored uint64
	if err := sqlConn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stored); err != nil {
		return err
	}
	switch {
	case stored > version:
		return fmt.Errorf("%w: database '%s' is at version %d, requested %d", engine.ErrVersion, name, stored, version)
	case stored == version:
		committed = true
		_, err := sqlConn.ExecContext(ctx, "COMMIT")
		return err
	}

	log.Infof("upgrading database '%s' from version %d to %d", name, stored, version)
	if _, err := sqlConn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, key_field TEXT NOT NULL)",
		quote(collectionsTable),
	)); err != nil {
		return err
	}
	if upgrade != nil {
		up := &upgradeTx{ctx: ctx, conn: sqlConn, oldVersion: stored, newVersion: version}
		if err := upgrade(up); err != nil {
			return err
		}
	}
	// PRAGMA does not take bound parameters
	if _, err := sqlConn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	if _, err := sqlConn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

// mapError turns SQLite lock contention into engine.ErrBlocked.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", engine.ErrBlocked, err)
	}
	return err
}

// quote quotes an SQL identifier.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func tableName(collection string) string {
	return quote(tablePrefix + collection)
}

// --------------------------------------------------------------------------
// Upgrade
// --------------------------------------------------------------------------

type upgradeTx struct {
	ctx        context.Context
	conn       *sql.Conn
	oldVersion uint64
	newVersion uint64
}

func (u *upgradeTx) CreateCollection(name, keyField string) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	if keyField == "" || keyField == valueColumn {
		return fmt.Errorf("%w: key field '%s' of collection '%s'", engine.ErrInvalidName, keyField, name)
	}

	var exists int
	err := u.conn.QueryRowContext(u.ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", quote(collectionsTable)), name,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: '%s'", engine.ErrCollectionExists, name)
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s TEXT PRIMARY KEY, %s BLOB NOT NULL) WITHOUT ROWID",
		tableName(name), quote(keyField), quote(valueColumn))
	if _, err := u.conn.ExecContext(u.ctx, stmt); err != nil {
		return err
	}
	_, err = u.conn.ExecContext(u.ctx,
		fmt.Sprintf("INSERT INTO %s (name, key_field) VALUES (?, ?)", quote(collectionsTable)), name, keyField)
	return err
}

func (u *upgradeTx) OldVersion() uint64 { return u.oldVersion }
func (u *upgradeTx) NewVersion() uint64 { return u.newVersion }

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type conn struct {
	db      *sql.DB
	version uint64
	hub     *engine.EventHub
}

func (c *conn) Transact(ctx context.Context, collection string, mode engine.Mode, fn func(tx engine.ITx) error) (err error) {
	if c.hub.Closed() {
		return engine.ErrClosed
	}

	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
			return engine.ErrClosed
		}
		return err
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	var keyField string
	err = sqlTx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT key_field FROM %s WHERE name = ?", quote(collectionsTable)), collection,
	).Scan(&keyField)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: '%s'", engine.ErrNoCollection, collection)
	}
	if err != nil {
		return err
	}

	t := &tx{
		ctx:      ctx,
		tx:       sqlTx,
		table:    tableName(collection),
		keyCol:   quote(keyField),
		writable: mode == engine.ModeReadWrite,
	}
	if err = fn(t); err != nil {
		return err
	}
	if !t.writable {
		// nothing to keep, release the read transaction
		return sqlTx.Rollback()
	}
	return sqlTx.Commit()
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
	ctx      context.Context
	tx       *sql.Tx
	table    string
	keyCol   string
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
	_, err := t.tx.ExecContext(t.ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, %s) VALUES (?, ?)", t.table, t.keyCol, quote(valueColumn)),
		rec.Key, value)
	return err
}

func (t *tx) Get(key string) (engine.Record, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", quote(valueColumn), t.table, t.keyCol), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Record{}, false, nil
	}
	if err != nil {
		return engine.Record{}, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return engine.Record{Key: key, Value: value}, true, nil
}

func (t *tx) Delete(key string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.table, t.keyCol), key)
	return err
}

func (t *tx) GetAllKeys() ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.keyCol, t.table, t.keyCol))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (t *tx) Clear() error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("DELETE FROM %s", t.table))
	return err
}
