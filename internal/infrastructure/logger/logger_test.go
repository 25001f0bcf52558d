package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigs(t *testing.T) {
	assert.Equal(t, "console", DefaultConfig().Format)
	assert.Equal(t, "stderr", DefaultConfig().Output)
	assert.Equal(t, "json", ProductionConfig().Format)
	assert.NotEmpty(t, ProductionConfig().TimeFormat)
}

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		l, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(&Config{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "coin.log")
		l, err := New(&Config{Level: "info", Format: "json", Output: path})
		require.NoError(t, err)

		l.Info("Coin opened", zap.String("coin_type_id", "tv"))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"coin_type_id":"tv"`)
	})

	t.Run("unwritable file output", func(t *testing.T) {
		_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "coin.log")})
		assert.Error(t, err)
	})
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, "debug", "json")
	require.NoError(t, err)

	l.Named("ledger").Debug("Write conflict, retrying", zap.Int("attempt", 1))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "ledger", entry["logger"])
	assert.Equal(t, "Write conflict, retrying", entry["msg"])
	assert.Equal(t, float64(1), entry["attempt"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for input, want := range tests {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
