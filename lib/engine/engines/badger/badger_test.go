package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	enginetesting "github.com/ValentinKolb/offlinedb/lib/engine/testing"
)

func newTestEngine(dir string) *Engine {
	return NewEngine(dir, &Options{SyncWrites: false, NumVersionsToKeep: 1})
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "BadgerEngine", func(t *testing.T) engine.IEngine {
		return newTestEngine(t.TempDir())
	})
}

func TestSecondOpenIsBlocked(t *testing.T) {
	e := newTestEngine(t.TempDir())
	create := func(up engine.IUpgrade) error { return up.CreateCollection("content", "key") }

	first, err := e.Open(context.Background(), "locked", 1, create)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer first.Close()

	_, err = e.Open(context.Background(), "locked", 1, create)
	if !errors.Is(err, engine.ErrBlocked) {
		t.Errorf("Expected ErrBlocked while the directory is locked, got %v", err)
	}
}

func TestCollectionsDoNotOverlap(t *testing.T) {
	e := newTestEngine(t.TempDir())
	conn, err := e.Open(context.Background(), "prefixes", 1, func(up engine.IUpgrade) error {
		if err := up.CreateCollection("a", "key"); err != nil {
			return err
		}
		return up.CreateCollection("ab", "key")
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	err = conn.Transact(context.Background(), "ab", engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: "x", Value: []byte("1")})
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var keys []string
	err = conn.Transact(context.Background(), "a", engine.ModeReadOnly, func(tx engine.ITx) error {
		keys, err = tx.GetAllKeys()
		return err
	})
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected collection 'a' to be empty, got %v", keys)
	}
}

func TestClearTooLargeAndTruncate(t *testing.T) {
	const total = 20000
	e := NewEngine(t.TempDir(), &Options{SyncWrites: false, NumVersionsToKeep: 1, MemTableSize: 8 << 20})
	conn, err := e.Open(context.Background(), "big", 1, func(up engine.IUpgrade) error {
		return up.CreateCollection("content", "key")
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	for start := 0; start < total; start += 500 {
		err = conn.Transact(context.Background(), "content", engine.ModeReadWrite, func(tx engine.ITx) error {
			for i := start; i < start+500; i++ {
				if err := tx.Put(engine.Record{Key: fmt.Sprintf("key-%05d", i), Value: []byte("v")}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Put batch at %d failed: %v", start, err)
		}
	}

	countKeys := func() int {
		var keys []string
		err := conn.Transact(context.Background(), "content", engine.ModeReadOnly, func(tx engine.ITx) error {
			var err error
			keys, err = tx.GetAllKeys()
			return err
		})
		if err != nil {
			t.Fatalf("GetAllKeys failed: %v", err)
		}
		return len(keys)
	}

	err = conn.Transact(context.Background(), "content", engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Clear()
	})
	if !errors.Is(err, engine.ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge from Clear, got %v", err)
	}
	if n := countKeys(); n != total {
		t.Errorf("Expected a failed Clear to keep %d keys, got %d", total, n)
	}

	truncater, ok := conn.(engine.ITruncater)
	if !ok {
		t.Fatal("Expected badger connection to implement ITruncater")
	}
	if err := truncater.Truncate(context.Background(), "content"); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if n := countKeys(); n != 0 {
		t.Errorf("Expected 0 keys after Truncate, got %d", n)
	}

	if err := truncater.Truncate(context.Background(), "missing"); !errors.Is(err, engine.ErrNoCollection) {
		t.Errorf("Expected ErrNoCollection for an unknown collection, got %v", err)
	}
}
