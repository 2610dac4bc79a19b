package heapbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigSpawnIsolatesRequiresHeapBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpawnIsolates = true
	cfg.UseHeapBase = false
	err := validateConfig(cfg)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "ConfigError", be.Kind)
}

func TestValidateConfigSpawnIsolatesRejectsWritableOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpawnIsolates = true
	cfg.UseHeapBase = true
	cfg.UseOnlyWritableBootImageHeap = true
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsNonPositiveWordBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordBytes = 0
	assert.Error(t, validateConfig(cfg))
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, validateConfig(DefaultConfig()))
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("print_heap_histogram: true\ncompression_shift: 4\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.PrintHeapHistogram)
	assert.Equal(t, uint(4), cfg.CompressionShift)
	assert.True(t, cfg.UseHeapBase, "fields absent from the file keep their default")
}
