// Package config is the struct-of-structs YAML configuration for the
// memory budget, VFS backend selection, and compute pool size,
// following the example repos' struct-tag-driven config loader idiom.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VFSBackend selects which vfs.ObjectStore implementation to construct.
type VFSBackend string

// VFSBackend constants.
const (
	VFSBackendLocal VFSBackend = "local"
	VFSBackendS3    VFSBackend = "s3" // reserved; no constructor wires this backend yet
)

// MemoryConfig bounds how much memory lazily-loaded fragment metadata
// sections may consume in aggregate before MemoryTracker starts
// rejecting new loads.
type MemoryConfig struct {
	BudgetBytes int64 `yaml:"budget_bytes" json:"budget_bytes"`
}

// VFSConfig selects and parameterizes the storage backend.
type VFSConfig struct {
	Backend VFSBackend `yaml:"backend" json:"backend"`
	RootDir string     `yaml:"root_dir" json:"root_dir"`
	Bucket  string     `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix  string     `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// PoolConfig bounds the compute pool used for parallel rollup and
// R-tree build work.
type PoolConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// CacheConfig configures FragmentInfo's optional bbolt read-through
// cache. Empty Dir disables caching.
type CacheConfig struct {
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	Memory MemoryConfig `yaml:"memory" json:"memory"`
	VFS    VFSConfig    `yaml:"vfs" json:"vfs"`
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Cache  CacheConfig  `yaml:"cache" json:"cache"`
}

// Default returns a Config with sane defaults for local, single-process use.
func Default() Config {
	return Config{
		Memory: MemoryConfig{BudgetBytes: 1 << 30},
		VFS:    VFSConfig{Backend: VFSBackendLocal, RootDir: "."},
		Pool:   PoolConfig{Workers: 4},
	}
}

// Load reads and parses a YAML config document from path, filling in
// Default() for any zero-valued field the document omits.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
