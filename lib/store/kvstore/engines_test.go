package kvstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/codec"
	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/badger"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/bolt"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/sqlite"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var diskEngines = map[string]func(dir string) engine.IEngine{
	"Bolt": func(dir string) engine.IEngine {
		return bolt.NewEngine(dir, &bolt.Options{Timeout: 10 * time.Millisecond, NoSync: true})
	},
	"Badger": func(dir string) engine.IEngine {
		return badger.NewEngine(dir, &badger.Options{NumVersionsToKeep: 1})
	},
	"SQLite": func(dir string) engine.IEngine {
		return sqlite.NewEngine(dir, &sqlite.Options{BusyTimeout: 10 * time.Millisecond})
	},
}

func TestDiskEngines(t *testing.T) {
	for name, factory := range diskEngines {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := New[note](factory(dir), "notes", codec.NewGOBCodec[note](), fastOptions...)
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Save(ctx, fmt.Sprintf("k%d", i), note{Title: fmt.Sprintf("t%d", i)}))
			}
			require.NoError(t, s.Delete(ctx, "k0"))
			require.NoError(t, s.Delete(ctx, "k0"))

			keys, err := s.List(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"k1", "k2", "k3", "k4"}, keys)
			require.NoError(t, s.Close())

			// reopening does not run the upgrade again and keeps the data
			s = New[note](factory(dir), "notes", codec.NewGOBCodec[note](), fastOptions...)
			defer s.Close()

			got, found, err := s.Get(ctx, "k3")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "t3", got.Title)

			info, err := s.Info(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, info.Keys)
			assert.Equal(t, SchemaVersion, info.Version)

			require.NoError(t, s.Clear(ctx))
			keys, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			require.NoError(t, s.Save(ctx, "x", note{}))
			require.NoError(t, s.Truncate(ctx))
			keys, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

// TestBadgerTruncateLargeCollection truncates more records than fit into one
// badger transaction.
func TestBadgerTruncateLargeCollection(t *testing.T) {
	ctx := context.Background()
	e := badger.NewEngine(t.TempDir(), &badger.Options{NumVersionsToKeep: 1, MemTableSize: 8 << 20})

	s := New[string](e, "notes", codec.NewRawStringCodec(), fastOptions...)
	defer s.Close()

	for i := 0; i < 15000; i++ {
		require.NoError(t, s.Save(ctx, fmt.Sprintf("key-%05d", i), "v"))
	}
	require.NoError(t, s.Truncate(ctx))

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// TestBoltLockedFileRecovers holds the bolt file lock with a second connection and
// releases it while the store is still retrying.
func TestBoltLockedFileRecovers(t *testing.T) {
	ctx := context.Background()
	e := bolt.NewEngine(t.TempDir(), &bolt.Options{Timeout: 5 * time.Millisecond, NoSync: true})

	holder, err := e.Open(ctx, "notes", SchemaVersion, upgrade)
	require.NoError(t, err)

	s := New[note](e, "notes", codec.NewJSONCodec[note](), WithOpenRetryDelay(10*time.Millisecond))
	defer s.Close()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, store.StateOpening, s.State())
	require.NoError(t, holder.Close())

	require.NoError(t, s.Save(ctx, "a", note{Title: "a"}))
	assert.Equal(t, store.StateReady, s.State())
}
