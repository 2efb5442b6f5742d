// Package store provides the interface of an asynchronous key-value store on top of
// an embedded transactional engine (see package engine), together with its
// lifecycle states and unified error handling.
//
// Key Components:
//
//   - IStore Interface: Save, Get, Delete, List and Clear over values of type T,
//     plus Truncate, Info, State and Close. Every method takes a context that bounds
//     the wait for the database and the engine call.
//
//   - Error System: readiness failures, codec failures and use after Close are
//     reported as *Error with a RetCode. Errors of the engine are passed through
//     unchanged, so errors.Is(err, engine.ErrBlocked) keeps working.
//
//   - State: opening, ready, failed and closed. A store only leaves ready when the
//     engine invalidates its connection or when it is closed.
//
// Implementations:
//
//   - Key-Value Store (kvstore): opens its database on construction, retries the open
//     a bounded number of times and gates every operation on readiness.
//     Available in the "github.com/ValentinKolb/offlinedb/lib/store/kvstore" package.
package store
