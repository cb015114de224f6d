package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fairtrain.log")
	l := NewLogger(path, "warn")
	l.Info("dropped")
	l.Warn("kept", zap.Int("epoch", 3))
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), `"msg":"kept"`)
	assert.Contains(t, string(b), `"epoch":3`)
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l := NewLogger("", "loud")
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
