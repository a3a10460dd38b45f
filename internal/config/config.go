// Package config loads and holds the daemon's model and system tuning
// parameters from an optional YAML configuration file, layered over
// built-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Model holds the Markov/predictor tuning parameters.
type Model struct {
	Cycle          uint32 `yaml:"cycle"`
	UseCorrelation bool   `yaml:"usecorrelation"`
	MinSize        uint32 `yaml:"minsize"`
	MemTotal       int32  `yaml:"memtotal"`
	MemFree        int32  `yaml:"memfree"`
	MemCached      int32  `yaml:"memcached"`
}

// System holds the scanner, autosave, and read-ahead tuning parameters.
type System struct {
	DoScan       bool     `yaml:"doscan"`
	DoPredict    bool     `yaml:"dopredict"`
	Autosave     uint32   `yaml:"autosave"`
	MapPrefix    []string `yaml:"mapprefix"`
	ExePrefix    []string `yaml:"exeprefix"`
	Processes    uint32   `yaml:"processes"`
	SortStrategy uint8    `yaml:"sortstrategy"`
}

// Config is the full, defaulted configuration tree.
type Config struct {
	Model  Model  `yaml:"model"`
	System System `yaml:"system"`
}

// defaultPrefixes is the shared default for both mapprefix and exeprefix.
func defaultPrefixes() []string {
	return []string{"/opt", "!/usr/sbin/", "!/usr/local/sbin/", "/usr/", "!/"}
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model: Model{
			Cycle:          20,
			UseCorrelation: true,
			MinSize:        2_000_000,
			MemTotal:       -10,
			MemFree:        50,
			MemCached:      0,
		},
		System: System{
			DoScan:       true,
			DoPredict:    true,
			Autosave:     3600,
			MapPrefix:    defaultPrefixes(),
			ExePrefix:    defaultPrefixes(),
			Processes:    30,
			SortStrategy: 3,
		},
	}
}

// Load reads path and merges it over Default(). An empty path returns the
// defaults unchanged, matching the CLI's "empty conffile means no file"
// convention.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return cfg, nil
}

// Reload re-reads path, returning a new Config on success. On failure the
// caller is expected to keep using its previous configuration; Reload
// itself performs no mutation of any existing Config, only reports the
// error for the caller to log and ignore.
func Reload(path string) (*Config, error) {
	return Load(path)
}
