// Package kvstore implements store.IStore on top of any engine.IEngine.
//
// New returns at once and opens the database in a background goroutine. The first
// open of a database creates the single collection "content" keyed by "key" at
// schema version 1. A failing open is retried (Options.OpenAttempts, default 10
// attempts in total, Options.OpenRetryDelay apart); when all attempts fail the
// error is logged and the store enters the failed state.
//
// Readiness Gate:
//
//	Every operation waits for the connection first. The wait ends as soon as the
//	open sequence settles and otherwise polls Options.ReadyPollAttempts times every
//	Options.ReadyPollInterval. A store that is failed, closed or still not open after
//	the last poll rejects the operation with a *store.Error (RetCNotReady or RetCClosed).
//
// Lifecycle:
//
//	The connection is watched for engine events. When the engine closes it or another
//	connection wants to upgrade the database (versionchange), the connection is closed
//	and dropped and the store enters the failed state; it is never reopened.
//
// Operations:
//
//   - Save, Get, Delete, List and Truncate each run in their own engine transaction.
//   - Clear lists the keys and deletes them one by one. It stops at the first error,
//     so a failed Clear may leave some keys deleted. Truncate is the atomic variant.
//
// Thread Safety:
//
//	A store is safe for concurrent use. Isolation of the data is left to the engine.
package kvstore
