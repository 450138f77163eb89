package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretsanta/internal/config"
	"secretsanta/internal/engine"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, engine.DefaultMaxAttempts, cfg.Engine.MaxAttempts)
	assert.Equal(t, "single-pass", cfg.Engine.Repair)
	assert.Equal(t, config.DefaultOutputPath, cfg.Output.DefaultPath)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/v0", cfg.Server.BasePath)

	opts := cfg.EngineOptions()
	assert.Equal(t, engine.RepairSinglePass, opts.Repair)
	assert.Equal(t, 100, opts.MaxAttempts)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("engine:\n  max_attempts: 250\n  repair: fixed-point\nhistory:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Engine.MaxAttempts)
	assert.Equal(t, engine.RepairFixedPoint, cfg.EngineOptions().Repair)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, config.DefaultOutputPath, cfg.Output.DefaultPath)
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	for _, doc := range []string{
		"engine:\n  max_attempts: 0\n",
		"engine:\n  repair: forever\n",
		"output:\n  default_path: \"\"\n",
		"server:\n  base_path: v0\n",
		"log:\n  level: chatty\n",
		"engine: [",
	} {
		_, err := config.FromYAML([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "santa config init")

	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("engine:\n  seed: 42\n"), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Engine.Seed)

	fromFile, err := config.FromFile(config.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, cfg, fromFile)
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
