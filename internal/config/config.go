// Package config loads engine configuration from YAML with env and flag overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Retrieval modes for the context assembler.
const (
	ModeSession = "session" // current-session isolation only
	ModeHybrid  = "hybrid"  // cross-session fusion of all six sources
)

// Config is the full engine configuration.
type Config struct {
	Storage     Storage     `yaml:"storage"`
	Embedding   Embedding   `yaml:"embedding"`
	TokenBudget TokenBudget `yaml:"tokenBudgets"`
	Compression Compression `yaml:"compression"`
	Ranking     Ranking     `yaml:"ranking"`
	Retrieval   Retrieval   `yaml:"retrieval"`
	Session     Session     `yaml:"session"`
	Logging     Logging     `yaml:"logging"`
}

// Storage locates the durable store.
type Storage struct {
	DataDir    string `yaml:"dataDir"`
	SQLiteFile string `yaml:"sqliteFile"`
}

// Embedding selects and sizes the embedding provider.
type Embedding struct {
	Provider   string `yaml:"provider"` // local | none
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// TokenBudget holds the per-tier token ceilings.
type TokenBudget struct {
	Tier0Working          int `yaml:"tier0Working"`
	Tier1Session          int `yaml:"tier1Session"`
	Tier2Epoch            int `yaml:"tier2Epoch"`
	Tier3Core             int `yaml:"tier3Core"`
	DefaultRetrieveBudget int `yaml:"defaultRetrieveBudget"`
}

// Compression controls auto- and manual compression triggers.
type Compression struct {
	Tier0OverflowThreshold  int `yaml:"tier0OverflowThreshold"`
	Tier1ConsolidationCount int `yaml:"tier1ConsolidationCount"`
}

// Ranking holds composite score weights and the dedup threshold.
type Ranking struct {
	SemanticWeight           float64 `yaml:"semanticWeight"`
	RecencyWeight            float64 `yaml:"recencyWeight"`
	PriorityWeight           float64 `yaml:"priorityWeight"`
	FrequencyWeight          float64 `yaml:"frequencyWeight"`
	DedupSimilarityThreshold float64 `yaml:"dedupSimilarityThreshold"`
}

// Retrieval selects the assembler mode.
type Retrieval struct {
	Mode string `yaml:"mode"`
}

// Session controls session lifecycle behavior.
type Session struct {
	AutoStartOnBoot bool `yaml:"autoStartOnBoot"`
}

// Logging configures the zap logger.
type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // relative to dataDir when not absolute
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "./data",
			SQLiteFile: "memory.db",
		},
		Embedding: Embedding{
			Provider:   "local",
			Model:      "Xenova/all-MiniLM-L6-v2",
			Dimensions: 384,
		},
		TokenBudget: TokenBudget{
			Tier0Working:          2000,
			Tier1Session:          500,
			Tier2Epoch:            300,
			Tier3Core:             200,
			DefaultRetrieveBudget: 3000,
		},
		Compression: Compression{
			Tier0OverflowThreshold:  2500,
			Tier1ConsolidationCount: 10,
		},
		Ranking: Ranking{
			SemanticWeight:           0.4,
			RecencyWeight:            0.3,
			PriorityWeight:           0.2,
			FrequencyWeight:          0.1,
			DedupSimilarityThreshold: 0.85,
		},
		Retrieval: Retrieval{
			Mode: ModeHybrid,
		},
		Session: Session{
			AutoStartOnBoot: true,
		},
		Logging: Logging{
			Level: "info",
			File:  "server.log",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults; LATENTCONTEXT_DATA_DIR overrides the data directory either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if env := os.Getenv("LATENTCONTEXT_DATA_DIR"); env != "" {
		cfg.Storage.DataDir = env
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case "local", "none":
	default:
		return fmt.Errorf("unknown embedding provider %q (valid: local, none)", c.Embedding.Provider)
	}
	switch c.Retrieval.Mode {
	case ModeSession, ModeHybrid:
	default:
		return fmt.Errorf("unknown retrieval mode %q (valid: %s, %s)", c.Retrieval.Mode, ModeSession, ModeHybrid)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// DBPath returns the full path of the durable store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.SQLiteFile)
}

// LogPath returns the full path of the diagnostics log, or "" when disabled.
func (c *Config) LogPath() string {
	if c.Logging.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.DataDir, c.Logging.File)
}
