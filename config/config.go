//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package config loads the process configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	// Type is "openai" or "gemini".
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
}

// SearchConfig carries the retrieval defaults.
type SearchConfig struct {
	LogWeight         float64 `yaml:"log_weight"`
	KnowledgeWeight   float64 `yaml:"knowledge_weight"`
	InternalWeight    float64 `yaml:"internal_weight"`
	Threshold         float64 `yaml:"threshold"`
	InternalThreshold float64 `yaml:"internal_threshold"`
	Limit             int     `yaml:"limit"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	Parallelism       int     `yaml:"parallelism"`
}

// SummaryConfig configures the optional result summarizer.
type SummaryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// FileSinkConfig configures the JSON-lines durable sink.
type FileSinkConfig struct {
	Path string `yaml:"path"`
}

// SQLiteSinkConfig configures the SQLite durable sink.
type SQLiteSinkConfig struct {
	Path string `yaml:"path"`
}

// COSSinkConfig configures the Tencent COS durable sink. Credentials come
// from the COS_SECRETID / COS_SECRETKEY environment variables.
type COSSinkConfig struct {
	BucketURL string `yaml:"bucket_url"`
	Prefix    string `yaml:"prefix"`
}

// SinksConfig lists the durable sinks behind the store. Absent entries are
// disabled.
type SinksConfig struct {
	File   *FileSinkConfig   `yaml:"file,omitempty"`
	SQLite *SQLiteSinkConfig `yaml:"sqlite,omitempty"`
	COS    *COSSinkConfig    `yaml:"cos,omitempty"`
}

// RetentionConfig configures the age-based cleanup sweep. Zero disables it.
type RetentionConfig struct {
	MaxAgeHours        int `yaml:"max_age_hours"`
	SweepIntervalHours int `yaml:"sweep_interval_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MetricsConfig configures the OTLP metrics exporter. Disabled by default.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	LogLevel  string          `yaml:"log_level"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Search    SearchConfig    `yaml:"search"`
	Summary   SummaryConfig   `yaml:"summary"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Retention RetentionConfig `yaml:"retention"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.APIKeyEnv == "" {
		switch cfg.Embedder.Type {
		case "gemini":
			cfg.Embedder.APIKeyEnv = "GOOGLE_API_KEY"
		default:
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Search.LogWeight == 0 {
		cfg.Search.LogWeight = 0.6
	}
	if cfg.Search.KnowledgeWeight == 0 {
		cfg.Search.KnowledgeWeight = 0.4
	}
	if cfg.Search.InternalWeight == 0 {
		cfg.Search.InternalWeight = 1.1
	}
	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = 0.25
	}
	if cfg.Search.InternalThreshold == 0 {
		cfg.Search.InternalThreshold = 0.3
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 8
	}
	if cfg.Search.TimeoutSecs == 0 {
		cfg.Search.TimeoutSecs = 30
	}
	if cfg.Search.Parallelism == 0 {
		cfg.Search.Parallelism = 4
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = "gpt-4"
	}
	if cfg.Summary.MaxTokens == 0 {
		cfg.Summary.MaxTokens = 300
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Endpoint == "" {
		cfg.Metrics.Endpoint = "localhost:4317"
	}
}
