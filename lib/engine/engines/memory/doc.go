// Package memory implements engine.IEngine entirely in process memory.
//
// Databases are kept in an xsync.MapOf keyed by name and live as long as the
// Engine value. Every connection opened through the same Engine sees the same
// data, so several connections interact the way clients of one shared database do:
//
//   - Opening a database at a higher version while other connections are open sends
//     those connections an EventVersionChange and fails with engine.ErrBlocked. Once
//     they have closed, a retry succeeds and runs the upgrade.
//   - Read-write transactions are serialized, read-only transactions run concurrently.
//     Writes are staged in the transaction and applied on commit.
//
// Hooks in Options inject failures into Open (OpenHook) or into individual object
// operations (RequestHook). They exist for tests of code built on top of the engine.
package memory
