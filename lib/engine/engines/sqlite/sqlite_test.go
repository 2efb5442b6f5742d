package sqlite

import (
	"context"
	"testing"

	"github.com/ValentinKolb/offlinedb/lib/engine"
	enginetesting "github.com/ValentinKolb/offlinedb/lib/engine/testing"
)

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "SQLiteEngine", func(t *testing.T) engine.IEngine {
		return NewEngine(t.TempDir(), nil)
	})
}

func TestKeyFieldBecomesColumn(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	ic, err := e.Open(context.Background(), "columns", 1, func(up engine.IUpgrade) error {
		return up.CreateCollection("content", "id")
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ic.Close()

	err = ic.Transact(context.Background(), "content", engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: `quote"d`, Value: []byte("v")})
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	c := ic.(*conn)
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM "c_content" WHERE "id" = ?`, `quote"d`).Scan(&count); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one row keyed by column 'id', got %d", count)
	}
}

func TestInvalidKeyField(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	_, err := e.Open(context.Background(), "invalid", 1, func(up engine.IUpgrade) error {
		return up.CreateCollection("content", "value")
	})
	if err == nil {
		t.Errorf("Expected an error for a key field clashing with the value column")
	}
}
