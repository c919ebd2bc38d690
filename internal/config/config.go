// Package config defines the engine's configuration surface and its
// layered loading: hardcoded defaults, an optional YAML file, then
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EmbeddingModel names one of the fixed-dimension embedding families the
// engine knows how to size an index for.
type EmbeddingModel string

const (
	EmbeddingModelSmall EmbeddingModel = "small" // D=384
	EmbeddingModelBase   EmbeddingModel = "base"  // D=768
	EmbeddingModelLarge  EmbeddingModel = "large" // D=1024
	EmbeddingModelMini   EmbeddingModel = "mini"  // D=384
)

// Dimensions returns the fixed vector width for this embedding family.
func (m EmbeddingModel) Dimensions() int {
	switch m {
	case EmbeddingModelSmall, EmbeddingModelMini:
		return 384
	case EmbeddingModelBase:
		return 768
	case EmbeddingModelLarge:
		return 1024
	default:
		return 384
	}
}

// Config is the complete engine configuration, per the programmatic API's
// enumerated configuration surface.
type Config struct {
	DBPath        string `yaml:"db_path"`
	ModelCacheDir string `yaml:"model_cache_dir"`

	EmbeddingModel EmbeddingModel `yaml:"embedding_model"`

	HNSWM             int `yaml:"hnsw_m"`
	HNSWEfSearch      int `yaml:"hnsw_ef_search"`
	HNSWMaxElements   int `yaml:"hnsw_max_elements"`

	QueueCapacity  int `yaml:"queue_capacity"`
	BatchSize      int `yaml:"batch_size"`
	BatchTimeoutMs int `yaml:"batch_timeout_ms"`

	SchemaDir string `yaml:"schema_dir"`
}

// Default returns the hardcoded baseline configuration. db_path still must
// be set by the caller; it has no sensible default.
func Default() *Config {
	return &Config{
		EmbeddingModel:  EmbeddingModelSmall,
		HNSWM:           16,
		HNSWEfSearch:    32,
		HNSWMaxElements: 100000,
		QueueCapacity:   64,
		BatchSize:       16,
		BatchTimeoutMs:  20,
	}
}

// Load reads the baseline defaults, merges a YAML file at path if present,
// applies KGRAPH_*-prefixed environment overrides, and validates the
// result. path may be empty to skip file loading.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.DBPath != "" {
		c.DBPath = other.DBPath
	}
	if other.ModelCacheDir != "" {
		c.ModelCacheDir = other.ModelCacheDir
	}
	if other.EmbeddingModel != "" {
		c.EmbeddingModel = other.EmbeddingModel
	}
	if other.HNSWM != 0 {
		c.HNSWM = other.HNSWM
	}
	if other.HNSWEfSearch != 0 {
		c.HNSWEfSearch = other.HNSWEfSearch
	}
	if other.HNSWMaxElements != 0 {
		c.HNSWMaxElements = other.HNSWMaxElements
	}
	if other.QueueCapacity != 0 {
		c.QueueCapacity = other.QueueCapacity
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	if other.BatchTimeoutMs != 0 {
		c.BatchTimeoutMs = other.BatchTimeoutMs
	}
	if other.SchemaDir != "" {
		c.SchemaDir = other.SchemaDir
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KGRAPH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("KGRAPH_MODEL_CACHE_DIR"); v != "" {
		c.ModelCacheDir = v
	}
	if v := os.Getenv("KGRAPH_EMBEDDING_MODEL"); v != "" {
		c.EmbeddingModel = EmbeddingModel(v)
	}
	if v := os.Getenv("KGRAPH_SCHEMA_DIR"); v != "" {
		c.SchemaDir = v
	}
	if v, err := strconv.Atoi(os.Getenv("KGRAPH_HNSW_M")); err == nil && v != 0 {
		c.HNSWM = v
	}
	if v, err := strconv.Atoi(os.Getenv("KGRAPH_HNSW_EF_SEARCH")); err == nil && v != 0 {
		c.HNSWEfSearch = v
	}
	if v, err := strconv.Atoi(os.Getenv("KGRAPH_QUEUE_CAPACITY")); err == nil && v != 0 {
		c.QueueCapacity = v
	}
	if v, err := strconv.Atoi(os.Getenv("KGRAPH_BATCH_SIZE")); err == nil && v != 0 {
		c.BatchSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("KGRAPH_BATCH_TIMEOUT_MS")); err == nil && v != 0 {
		c.BatchTimeoutMs = v
	}
}

// Validate checks the configuration is complete enough to open an engine.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.HNSWM <= 0 {
		return fmt.Errorf("hnsw_m must be positive")
	}
	if c.HNSWEfSearch <= 0 {
		return fmt.Errorf("hnsw_ef_search must be positive")
	}
	if c.HNSWMaxElements <= 0 {
		return fmt.Errorf("hnsw_max_elements must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.BatchTimeoutMs <= 0 {
		return fmt.Errorf("batch_timeout_ms must be positive")
	}
	return nil
}

// AnnIndexPath and NamesIndexPath are the fixed sibling-file names under
// DBPath the on-disk layout specifies for the ANN graph and the FST.
func (c *Config) AnnIndexPath() string   { return filepath.Join(c.DBPath, "ann.index") }
func (c *Config) NamesIndexPath() string { return filepath.Join(c.DBPath, "names.fst") }
