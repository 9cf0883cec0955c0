package wasm

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultStartFunctions are run after instantiation; missing ones are skipped.
var DefaultStartFunctions = []string{"_initialize", "_start"}

// Config describes how to bring up the engine module.
type Config struct {
	// Path of the .wasm file; ignored when Binary is set.
	Path   string `yaml:"path" json:"path"`
	Binary []byte `yaml:"-" json:"-"`
	// MountDir is the host directory visible to the engine as "/". Models
	// can only be saved and loaded below it. Defaults to the host root.
	MountDir       string   `yaml:"mount_dir" json:"mount_dir"`
	StartFunctions []string `yaml:"start_functions" json:"start_functions"`
	// MemoryLimitPages caps linear memory growth (64KiB pages); zero keeps
	// the runtime default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages"`
	// CacheDir enables wazero's compilation cache on disk.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

func (c *Config) init() {
	if c.MountDir == "" {
		c.MountDir = "/"
	}
	if len(c.StartFunctions) == 0 {
		c.StartFunctions = DefaultStartFunctions
	}
}

func (c *Config) binary() ([]byte, error) {
	if len(c.Binary) > 0 {
		return c.Binary, nil
	}
	if c.Path == "" {
		return nil, errors.New("wasm: neither path nor binary configured")
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("wasm: read module: %w", err)
	}
	return data, nil
}

// LoadConfig decodes a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("wasm: decode config: %w", err)
	}
	return c, nil
}
