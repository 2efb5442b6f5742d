package common

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestZapLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewZapLogger(&buf, LogFormatConsole)
	require.NoError(t, err)

	l := NewLoggerFactory(base)("store")
	l.SetLevel(logger.WARNING)

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	l.Errorf("shown %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "shown 3")
	assert.Contains(t, out, "store")
	assert.Contains(t, out, "WARN")
}

func TestZapLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewZapLogger(&buf, LogFormatJSON)
	require.NoError(t, err)

	l := NewLoggerFactory(base)("engine")
	l.SetLevel(logger.DEBUG)
	l.Debugf("opened database '%s'", "notes")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "engine", entry["logger"])
	assert.Equal(t, "opened database 'notes'", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := NewZapLogger(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	c := Config{Engine: "bolt", DataDir: "/tmp/data", DB: "notes", Codec: "json", LogLevel: "info", LogFormat: "console"}
	s := c.String()
	for _, want := range []string{"STORAGE", "bolt", "/tmp/data", "notes", "LOGGING"} {
		assert.True(t, strings.Contains(s, want), "missing %q in %s", want, s)
	}

	c.Engine = "memory"
	assert.NotContains(t, c.String(), "/tmp/data")
}
