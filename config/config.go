// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads the application configuration from YAML with
// environment overrides. Unknown YAML keys are rejected so typos fail at
// startup instead of silently using defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// AIConfig configures the embedding and generation hosts.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	GenerationHost  string  `yaml:"generation_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	GenerationModel string  `yaml:"generation_model"`
	EmbeddingDim    int     `yaml:"embedding_dim"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// RetrievalConfig configures query handling.
type RetrievalConfig struct {
	DefaultTopK        int `yaml:"default_top_k"`
	MaxTopK            int `yaml:"max_top_k"`
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
	ResultCacheSize    int `yaml:"result_cache_size"`
}

// ClusteringConfig configures the topic model.
type ClusteringConfig struct {
	K           int   `yaml:"k"`
	Seed        int64 `yaml:"seed"`
	AutoMinDocs int   `yaml:"auto_min_docs"`
}

// RAGConfig configures answer generation.
type RAGConfig struct {
	TokenBudget int `yaml:"token_budget"`
}

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	AI         AIConfig         `yaml:"ai"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Clustering ClusteringConfig `yaml:"clustering"`
	RAG        RAGConfig        `yaml:"rag"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Path: "data/scholarquery",
		},
		AI: AIConfig{
			EmbeddingHost:   "http://localhost:8081",
			GenerationHost:  "http://localhost:8082",
			EmbeddingModel:  "nomic-embed-text-v1.5",
			GenerationModel: "llama-3.1-8b-instruct",
			EmbeddingDim:    384,
			MaxTokens:       512,
			Temperature:     0.1,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:        10,
			MaxTopK:            100,
			EmbeddingCacheSize: 4096,
			ResultCacheSize:    1024,
		},
		Clustering: ClusteringConfig{
			K:           8,
			Seed:        1,
			AutoMinDocs: 0, // auto reclustering disabled
		},
		RAG: RAGConfig{
			TokenBudget: 3072,
		},
	}
}

// Load reads configuration from the given YAML path, applying defaults for
// absent fields and environment overrides on top. A missing file is not an
// error; the defaults plus environment are used. A .env file in the working
// directory is honored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.AI.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.DefaultTopK <= 0 || c.Retrieval.MaxTopK < c.Retrieval.DefaultTopK {
		return fmt.Errorf("%w: top_k bounds %d/%d", ErrInvalidConfig, c.Retrieval.DefaultTopK, c.Retrieval.MaxTopK)
	}
	if c.Clustering.K <= 0 {
		return fmt.Errorf("%w: clustering k must be positive", ErrInvalidConfig)
	}
	if c.RAG.TokenBudget <= 0 {
		return fmt.Errorf("%w: token budget must be positive", ErrInvalidConfig)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage path required", ErrInvalidConfig)
	}
	return nil
}

// applyEnvOverrides lets deployment environments override the host-specific
// settings without editing the YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHOLARQUERY_EMBEDDING_HOST"); v != "" {
		cfg.AI.EmbeddingHost = v
	}
	if v := os.Getenv("SCHOLARQUERY_GENERATION_HOST"); v != "" {
		cfg.AI.GenerationHost = v
	}
	if v := os.Getenv("SCHOLARQUERY_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SCHOLARQUERY_HOST"); v != "" {
		cfg.Server.Host = v
	}
}
