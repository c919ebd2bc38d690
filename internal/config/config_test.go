package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneBaseline(t *testing.T) {
	cfg := Default()
	assert.Equal(t, EmbeddingModelSmall, cfg.EmbeddingModel)
	assert.Equal(t, 16, cfg.HNSWM)
	assert.Equal(t, 64, cfg.QueueCapacity)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 20, cfg.BatchTimeoutMs)
}

func TestLoad_RequiresDBPath(t *testing.T) {
	t.Setenv("KGRAPH_DB_PATH", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/kg\nhnsw_m: 24\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kg", cfg.DBPath)
	assert.Equal(t, 24, cfg.HNSWM)
	assert.Equal(t, 32, cfg.HNSWEfSearch) // untouched default survives the merge
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/kg\nbatch_size: 8\n"), 0o644))

	t.Setenv("KGRAPH_BATCH_SIZE", "32")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.BatchSize)
}

func TestEmbeddingModel_Dimensions(t *testing.T) {
	assert.Equal(t, 384, EmbeddingModelSmall.Dimensions())
	assert.Equal(t, 768, EmbeddingModelBase.Dimensions())
	assert.Equal(t, 1024, EmbeddingModelLarge.Dimensions())
	assert.Equal(t, 384, EmbeddingModelMini.Dimensions())
}

func TestConfig_AnnAndNamesIndexPaths(t *testing.T) {
	cfg := &Config{DBPath: "/data/kg"}
	assert.Equal(t, filepath.Join("/data/kg", "ann.index"), cfg.AnnIndexPath())
	assert.Equal(t, filepath.Join("/data/kg", "names.fst"), cfg.NamesIndexPath())
}
