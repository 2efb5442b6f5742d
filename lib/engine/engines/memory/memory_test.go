package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	enginetesting "github.com/ValentinKolb/offlinedb/lib/engine/testing"
)

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "MemoryEngine", func(t *testing.T) engine.IEngine {
		return NewEngine(nil)
	})
}

func createContent(up engine.IUpgrade) error {
	return up.CreateCollection("content", "key")
}

func TestVersionChangeBlocksUntilClosed(t *testing.T) {
	e := NewEngine(nil)

	old, err := e.Open(context.Background(), "db", 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	_, err = e.Open(context.Background(), "db", 2, nil)
	if !errors.Is(err, engine.ErrBlocked) {
		t.Fatalf("Expected ErrBlocked while version 1 is open, got %v", err)
	}

	ev := <-old.Events()
	if ev.Type != engine.EventVersionChange || ev.OldVersion != 1 || ev.NewVersion != 2 {
		t.Errorf("Expected versionchange 1 -> 2, got %+v", ev)
	}

	if err := old.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	upgraded, err := e.Open(context.Background(), "db", 2, func(up engine.IUpgrade) error {
		if up.OldVersion() != 1 {
			t.Errorf("Expected old version 1, got %d", up.OldVersion())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Open at version 2 failed: %v", err)
	}
	defer upgraded.Close()

	// collections of version 1 survive the upgrade
	err = upgraded.Transact(context.Background(), "content", engine.ModeReadOnly, func(tx engine.ITx) error {
		_, err := tx.GetAllKeys()
		return err
	})
	if err != nil {
		t.Errorf("Expected collection from version 1 to exist, got %v", err)
	}
}

func TestOpenHook(t *testing.T) {
	errBroken := errors.New("broken")
	var seen []int
	e := NewEngine(&Options{
		OnOpen: func(name string, attempt int) error {
			seen = append(seen, attempt)
			if attempt < 3 {
				return errBroken
			}
			return nil
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := e.Open(context.Background(), "db", 1, createContent); !errors.Is(err, errBroken) {
			t.Fatalf("Expected injected error on attempt %d, got %v", i+1, err)
		}
	}
	conn, err := e.Open(context.Background(), "db", 1, createContent)
	if err != nil {
		t.Fatalf("Expected third attempt to succeed, got %v", err)
	}
	defer conn.Close()

	if len(seen) != 3 || seen[2] != 3 {
		t.Errorf("Expected attempts [1 2 3], got %v", seen)
	}
}

func TestRequestHook(t *testing.T) {
	errDenied := errors.New("denied")
	e := NewEngine(&Options{
		OnRequest: func(op Op, key string) error {
			if op == OpDelete && key == "protected" {
				return errDenied
			}
			return nil
		},
	})
	conn, err := e.Open(context.Background(), "db", 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	err = conn.Transact(context.Background(), "content", engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Delete("protected")
	})
	if !errors.Is(err, errDenied) {
		t.Errorf("Expected injected error, got %v", err)
	}
}

func TestDeleteDatabase(t *testing.T) {
	e := NewEngine(nil)
	conn, err := e.Open(context.Background(), "db", 1, createContent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := e.DeleteDatabase("db"); !errors.Is(err, engine.ErrBlocked) {
		t.Errorf("Expected ErrBlocked while a connection is open, got %v", err)
	}
	_ = conn.Close()
	if err := e.DeleteDatabase("db"); err != nil {
		t.Fatalf("DeleteDatabase failed: %v", err)
	}

	calls := 0
	conn, err = e.Open(context.Background(), "db", 1, func(up engine.IUpgrade) error {
		calls++
		return createContent(up)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()
	if calls != 1 {
		t.Errorf("Expected a deleted database to be created again")
	}
}
