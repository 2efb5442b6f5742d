// Package sqlite implements engine.IEngine on top of SQLite (github.com/mattn/go-sqlite3).
//
// Each database is a file <dir>/<name>.sqlite in WAL mode. The schema version is
// kept in PRAGMA user_version, collections are tables named c_<collection> with the
// key field as primary key column and a "value" BLOB column. The upgrade runs in a
// BEGIN IMMEDIATE transaction; lock contention (SQLITE_BUSY) is reported as
// engine.ErrBlocked.
package sqlite
