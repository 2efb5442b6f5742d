// Package cmd implements the command-line interface of offlineDB. It opens a
// store on a local database and runs single operations or a small benchmark
// against it.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (save, get, del, list, clear, ...)
//   - perf: Performance testing tool for the storage engines
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix
// OFFLINEDB_ (e.g. OFFLINEDB_DATA_DIR), .env and .env.local are loaded on start.
//
// See offlinedb -help for a list of all commands.
package cmd
