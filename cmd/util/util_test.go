package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}

func TestGetEngine(t *testing.T) {
	dir := t.TempDir()
	for _, impl := range []engine.Implementation{engine.ImplBolt, engine.ImplBadger, engine.ImplSQLite, engine.ImplMemory} {
		e, err := GetEngine(&common.Config{Engine: string(impl), DataDir: dir})
		require.NoError(t, err)
		assert.Equal(t, impl, e.Implementation())
	}

	_, err := GetEngine(&common.Config{Engine: "leveldb"})
	assert.Error(t, err)
}

func TestOpenStoreRejectsUnknownCodec(t *testing.T) {
	_, err := OpenStore(&common.Config{Engine: "memory", DB: "x", Codec: "xml"}, nil)
	assert.Error(t, err)
}

func TestCommandContext(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	ctx, cancel := CommandContext(cmd, &common.Config{Timeout: time.Minute})
	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "expected a deadline for a positive timeout")
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	ctx, cancel = CommandContext(cmd, &common.Config{})
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok, "expected no deadline without a timeout")
}
