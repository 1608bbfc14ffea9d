package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewConfig(t *testing.T) {
	cfg := newConfig("debug", "console", "")
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)

	dir := t.TempDir()
	cfg = newConfig("not-a-level", "json", dir)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
	assert.Nil(t, cfg.Sampling)
	assert.Equal(t, []string{"stdout", filepath.Join(dir, "app.log")}, cfg.OutputPaths)
}

func TestUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Infof("[Test] %d", 1)
		Error("[Test] failed", nil)
		Sync()
	})
}
