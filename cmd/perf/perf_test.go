package perf

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/codec"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/memory"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/ValentinKolb/offlinedb/lib/store/kvstore"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBenchmarks(t *testing.T) {
	perfNumThreads = 4
	perfOps = 20
	perfKeySpread = 10
	perfLargeValueSizeKB = 1

	ctx := context.Background()
	s := kvstore.New[string](memory.NewEngine(nil), "perf", codec.NewRawStringCodec())
	defer s.Close()

	for _, b := range benchmarks() {
		r, err := runBenchmark(ctx, s, b)
		require.NoError(t, err, b.name)
		assert.Equal(t, int64(perfNumThreads*perfOps), r.timer.Count(), b.name)
		assert.Zero(t, r.errors, b.name)

		// benchmark keys are removed again
		keys, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys, b.name)
	}
}

func TestShouldSkip(t *testing.T) {
	perfSkip = []string{"get", "list"}
	assert.True(t, shouldSkip("get"))
	assert.False(t, shouldSkip("save"))
}

func TestRunBenchmarkStopsAtDeadline(t *testing.T) {
	perfNumThreads = 2
	perfOps = 1000000
	perfKeySpread = 10

	s := kvstore.New[string](memory.NewEngine(nil), "perf", codec.NewRawStringCodec())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runBenchmark(ctx, s, benchmark{
		name: "save",
		op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
			return s.Save(ctx, key, "v")
		},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTimeoutSet(t *testing.T) {
	t.Setenv("OFFLINEDB_TIMEOUT", "")
	cmd := &cobra.Command{}
	cmd.Flags().Int("timeout", 10, "")
	assert.True(t, timeoutSet(cmd), "environment variable counts as set")

	require.NoError(t, os.Unsetenv("OFFLINEDB_TIMEOUT"))
	assert.False(t, timeoutSet(cmd), "flag default does not count as set")

	require.NoError(t, cmd.Flags().Set("timeout", "30"))
	assert.True(t, timeoutSet(cmd))
}
