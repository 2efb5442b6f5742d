// Package bolt implements engine.IEngine on top of bbolt (go.etcd.io/bbolt).
//
// Each database is a single file <dir>/<name>.db. Collections are top-level
// buckets, the schema version and the key field of each collection live in the
// "__meta" bucket. The upgrade callback runs inside the same bolt write
// transaction that stores the new version, so a failing upgrade leaves the file
// untouched.
//
// bbolt holds an exclusive file lock while a database is open. A second Open of
// the same file waits Options.Timeout for it and then fails with engine.ErrBlocked.
package bolt
