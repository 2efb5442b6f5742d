package bolt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	enginetesting "github.com/ValentinKolb/offlinedb/lib/engine/testing"
)

func newTestEngine(dir string) *Engine {
	return NewEngine(dir, &Options{Timeout: 50 * time.Millisecond, NoSync: true})
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "BoltEngine", func(t *testing.T) engine.IEngine {
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

	_, err = e.Open(context.Background(), "locked", 1, create)
	if !errors.Is(err, engine.ErrBlocked) {
		t.Errorf("Expected ErrBlocked while the file is locked, got %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	second, err := e.Open(context.Background(), "locked", 1, create)
	if err != nil {
		t.Fatalf("Open after Close failed: %v", err)
	}
	_ = second.Close()
}

func TestInvalidName(t *testing.T) {
	e := newTestEngine(t.TempDir())
	_, err := e.Open(context.Background(), "../escape", 1, nil)
	if !errors.Is(err, engine.ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName, got %v", err)
	}
}
