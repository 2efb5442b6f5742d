package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/offlinedb/lib/engine"
)

// EngineFactory creates a new, empty engine. It is called once per test, tests that
// reopen a database call Open on the same engine again.
type EngineFactory func(t *testing.T) engine.IEngine

const (
	testDB         = "testdb"
	testCollection = "content"
	testKeyField   = "key"
)

// RunEngineTests runs the conformance suite for an IEngine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenRunsUpgradeOnce", func(t *testing.T) {
			testOpenRunsUpgradeOnce(t, factory(t))
		})

		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("GetAllKeys", func(t *testing.T) {
			testGetAllKeys(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory(t))
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory(t))
		})

		t.Run("NoCollection", func(t *testing.T) {
			testNoCollection(t, factory(t))
		})

		t.Run("VersionTooLow", func(t *testing.T) {
			testVersionTooLow(t, factory(t))
		})

		t.Run("UpgradeError", func(t *testing.T) {
			testUpgradeError(t, factory(t))
		})

		t.Run("CollectionExists", func(t *testing.T) {
			testCollectionExists(t, factory(t))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func createContent(up engine.IUpgrade) error {
	return up.CreateCollection(testCollection, testKeyField)
}

// mustOpen opens the test database at version 1 and closes it at the end of the test.
func mustOpen(t *testing.T, e engine.IEngine) engine.IConn {
	t.Helper()
	conn, err := e.Open(context.Background(), testDB, 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func put(t *testing.T, conn engine.IConn, key string, value []byte) {
	t.Helper()
	err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: key, Value: value})
	})
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

func get(t *testing.T, conn engine.IConn, key string) ([]byte, bool) {
	t.Helper()
	var rec engine.Record
	var found bool
	err := conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		var err error
		rec, found, err = tx.Get(key)
		return err
	})
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return rec.Value, found
}

func allKeys(t *testing.T, conn engine.IConn) []string {
	t.Helper()
	var keys []string
	err := conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		var err error
		keys, err = tx.GetAllKeys()
		return err
	})
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	sort.Strings(keys)
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenRunsUpgradeOnce(t *testing.T, e engine.IEngine) {
	calls := 0
	upgrade := func(up engine.IUpgrade) error {
		calls++
		if up.OldVersion() != 0 || up.NewVersion() != 1 {
			t.Errorf("Expected upgrade 0 -> 1, got %d -> %d", up.OldVersion(), up.NewVersion())
		}
		return createContent(up)
	}

	conn, err := e.Open(context.Background(), testDB, 1, upgrade)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if conn.Version() != 1 {
		t.Errorf("Expected version 1, got %d", conn.Version())
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conn, err = e.Open(context.Background(), testDB, 1, upgrade)
	if err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}
	defer conn.Close()

	if calls != 1 {
		t.Errorf("Expected upgrade to run once, ran %d times", calls)
	}
}

func testPutGet(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	put(t, conn, testKey, testValue1)
	result, found := get(t, conn, testKey)
	if !found {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	put(t, conn, testKey, testValue2)
	result, found = get(t, conn, testKey)
	if !found {
		t.Errorf("Expected key %s to exist after overwrite", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, found := get(t, conn, "nonexistent-key"); found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	result[0] = 'X'
	original, _ := get(t, conn, testKey)
	if bytes.Equal(result, original) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: "", Value: testValue1})
	})
	if !errors.Is(err, engine.ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey for an empty key, got %v", err)
	}
}

func testDelete(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	put(t, conn, "delete-me", []byte("value"))

	del := func(key string) error {
		return conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
			return tx.Delete(key)
		})
	}

	if err := del("delete-me"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := get(t, conn, "delete-me"); found {
		t.Errorf("Key should not exist after Delete")
	}

	if err := del("delete-me"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
	if err := del("never-existed"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func testGetAllKeys(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	if keys := allKeys(t, conn); len(keys) != 0 {
		t.Errorf("Expected no keys in a new collection, got %v", keys)
	}

	expected := []string{"a", "b", "c"}
	for _, key := range expected {
		put(t, conn, key, []byte("value-"+key))
	}
	// overwriting must not duplicate keys
	put(t, conn, "b", []byte("other"))

	if keys := allKeys(t, conn); !equalKeys(keys, expected) {
		t.Errorf("Expected keys %v, got %v", expected, keys)
	}

	// keys written in the same transaction are visible to it
	err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
		if err := tx.Put(engine.Record{Key: "d", Value: []byte("d")}); err != nil {
			return err
		}
		if err := tx.Delete("a"); err != nil {
			return err
		}
		keys, err := tx.GetAllKeys()
		if err != nil {
			return err
		}
		sort.Strings(keys)
		if !equalKeys(keys, []string{"b", "c", "d"}) {
			return fmt.Errorf("unexpected keys inside transaction: %v", keys)
		}
		return nil
	})
	if err != nil {
		t.Errorf("Transaction failed: %v", err)
	}
}

func testClear(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	for i := 0; i < 50; i++ {
		put(t, conn, fmt.Sprintf("key-%03d", i), []byte("value"))
	}

	err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Clear()
	})
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if keys := allKeys(t, conn); len(keys) != 0 {
		t.Errorf("Expected no keys after Clear, got %d", len(keys))
	}

	// the collection is still usable
	put(t, conn, "after-clear", []byte("value"))
	if _, found := get(t, conn, "after-clear"); !found {
		t.Errorf("Expected key written after Clear to exist")
	}
}

func testReadOnly(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	err := conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: "key", Value: []byte("value")})
	})
	if !errors.Is(err, engine.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Put, got %v", err)
	}

	err = conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		return tx.Delete("key")
	})
	if !errors.Is(err, engine.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Delete, got %v", err)
	}

	err = conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		return tx.Clear()
	})
	if !errors.Is(err, engine.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for Clear, got %v", err)
	}

	if _, found := get(t, conn, "key"); found {
		t.Errorf("Read-only transaction must not write")
	}
}

func testRollback(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	put(t, conn, "kept", []byte("original"))

	errAbort := errors.New("abort")
	err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
		if err := tx.Put(engine.Record{Key: "kept", Value: []byte("changed")}); err != nil {
			return err
		}
		if err := tx.Put(engine.Record{Key: "new", Value: []byte("value")}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Expected the error of fn to be returned unmodified, got %v", err)
	}

	if value, _ := get(t, conn, "kept"); !bytes.Equal(value, []byte("original")) {
		t.Errorf("Expected rolled back value 'original', got %s", value)
	}
	if _, found := get(t, conn, "new"); found {
		t.Errorf("Key written in a rolled back transaction should not exist")
	}
}

func testNoCollection(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	err := conn.Transact(context.Background(), "missing", engine.ModeReadOnly, func(tx engine.ITx) error {
		return nil
	})
	if !errors.Is(err, engine.ErrNoCollection) {
		t.Errorf("Expected ErrNoCollection, got %v", err)
	}
}

func testVersionTooLow(t *testing.T, e engine.IEngine) {
	conn, err := e.Open(context.Background(), testDB, 2, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = e.Open(context.Background(), testDB, 1, createContent)
	if !errors.Is(err, engine.ErrVersion) {
		t.Errorf("Expected ErrVersion when opening an older version, got %v", err)
	}

	_, err = e.Open(context.Background(), "other", 0, createContent)
	if !errors.Is(err, engine.ErrVersion) {
		t.Errorf("Expected ErrVersion for version 0, got %v", err)
	}
}

func testUpgradeError(t *testing.T, e engine.IEngine) {
	errUpgrade := errors.New("upgrade failed")
	_, err := e.Open(context.Background(), testDB, 1, func(up engine.IUpgrade) error {
		if err := createContent(up); err != nil {
			return err
		}
		return errUpgrade
	})
	if !errors.Is(err, errUpgrade) {
		t.Fatalf("Expected the upgrade error, got %v", err)
	}

	// the failed upgrade left nothing behind, the next open upgrades again
	calls := 0
	conn, err := e.Open(context.Background(), testDB, 1, func(up engine.IUpgrade) error {
		calls++
		return createContent(up)
	})
	if err != nil {
		t.Fatalf("Open after failed upgrade failed: %v", err)
	}
	defer conn.Close()
	if calls != 1 {
		t.Errorf("Expected the upgrade to run again, ran %d times", calls)
	}
	put(t, conn, "key", []byte("value"))
}

func testCollectionExists(t *testing.T, e engine.IEngine) {
	_, err := e.Open(context.Background(), testDB, 1, func(up engine.IUpgrade) error {
		if err := createContent(up); err != nil {
			return err
		}
		return createContent(up)
	})
	if !errors.Is(err, engine.ErrCollectionExists) {
		t.Errorf("Expected ErrCollectionExists, got %v", err)
	}
}

func testReopen(t *testing.T, e engine.IEngine) {
	conn, err := e.Open(context.Background(), testDB, 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	put(t, conn, "persistent", []byte("value"))
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conn = mustOpen(t, e)
	value, found := get(t, conn, "persistent")
	if !found || !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected value to survive reopening, got found=%t value=%s", found, value)
	}
}

func testClose(t *testing.T, e engine.IEngine) {
	conn, err := e.Open(context.Background(), testDB, 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	sawClose := false
	for ev := range conn.Events() {
		if ev.Type == engine.EventClose {
			sawClose = true
		}
	}
	if !sawClose {
		t.Errorf("Expected an EventClose before the event channel was closed")
	}

	err = conn.Transact(context.Background(), testCollection, engine.ModeReadOnly, func(tx engine.ITx) error {
		return nil
	})
	if !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed on a closed connection, got %v", err)
	}
}

func testConcurrentWrites(t *testing.T, e engine.IEngine) {
	conn := mustOpen(t, e)

	const workers = 8
	const perWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				err := conn.Transact(context.Background(), testCollection, engine.ModeReadWrite, func(tx engine.ITx) error {
					return tx.Put(engine.Record{Key: key, Value: []byte(key)})
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent Put failed: %v", err)
	}

	if keys := allKeys(t, conn); len(keys) != workers*perWorker {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, len(keys))
	}
}
