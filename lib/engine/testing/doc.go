// Package testing provides a conformance suite for implementations of engine.IEngine.
//
// Every engine in this module runs the suite from its own package tests:
//
//	func Test(t *testing.T) {
//		enginetesting.RunEngineTests(t, "BoltEngine", func(t *testing.T) engine.IEngine {
//			return bolt.NewEngine(t.TempDir(), nil)
//		})
//	}
//
// The suite covers the upgrade protocol, the object operations, transaction
// isolation (read-only rejection, rollback) and the connection lifecycle.
package testing
