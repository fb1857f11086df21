// Package config loads the storefront configuration from YAML with sensible
// defaults for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/minibay/storefront/pkg/logger"
)

// NodeConfig points at the external ledger node.
type NodeConfig struct {
	// RPCURL is the node's command endpoint.
	RPCURL string `yaml:"rpc_url"`
	// ListenURL is the node's websocket endpoint for inbound peer messages.
	ListenURL string `yaml:"listen_url"`
	// TimeoutSeconds bounds each command round-trip.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RegistryConfig parameterises the permanent registry.
type RegistryConfig struct {
	TreasuryAddress string `yaml:"treasury_address"`
	Fee             string `yaml:"fee"`
}

// CatalogConfig tunes the aggregation pipeline.
type CatalogConfig struct {
	// RefreshSchedule is a cron spec ("@every 5m") for background refresh.
	RefreshSchedule string `yaml:"refresh_schedule"`
	// FetchRatePerSecond limits outbound catalog fetches; zero disables.
	FetchRatePerSecond float64 `yaml:"fetch_rate_per_second"`
}

// RedisConfig points at a Redis instance for the shared catalog cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig selects the catalog cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// ObjectStoreConfig points at the third-party package upload gateway.
type ObjectStoreConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// BroadcastConfig tunes the live channel.
type BroadcastConfig struct {
	// Application tags outbound messages so peers can filter.
	Application string `yaml:"application"`
}

// Config is the full application configuration.
type Config struct {
	Listen      string                `yaml:"listen"`
	Logging     logger.LoggingConfig  `yaml:"logging"`
	Node        NodeConfig            `yaml:"node"`
	Registry    RegistryConfig        `yaml:"registry"`
	Catalog     CatalogConfig         `yaml:"catalog"`
	Cache       CacheConfig           `yaml:"cache"`
	ObjectStore ObjectStoreConfig     `yaml:"object_store"`
	Broadcast   BroadcastConfig       `yaml:"broadcast"`
}

// Default returns the local-development configuration.
func Default() *Config {
	return &Config{
		Listen: ":8090",
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Node: NodeConfig{
			RPCURL:         "http://127.0.0.1:9005",
			ListenURL:      "ws://127.0.0.1:9004",
			TimeoutSeconds: 30,
		},
		Registry: RegistryConfig{
			TreasuryAddress: "0xFFEEDD00112233445566778899AABBCC",
			Fee:             "0.01",
		},
		Catalog: CatalogConfig{
			RefreshSchedule:    "@every 5m",
			FetchRatePerSecond: 10,
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Broadcast: BroadcastConfig{
			Application: "storefront",
		},
	}
}

// Load reads the config path from STOREFRONT_CONFIG, falling back to
// config/storefront.yaml, and falls back to defaults when no file exists.
func Load() (*Config, error) {
	path := os.Getenv("STOREFRONT_CONFIG")
	if path == "" {
		path = filepath.Join("config", "storefront.yaml")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates a specific config file. Absent fields
// keep their default values.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Node.RPCURL == "" {
		return nil, fmt.Errorf("node.rpc_url is required")
	}
	if cfg.Cache.Backend != "memory" && cfg.Cache.Backend != "redis" {
		return nil, fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required for the redis backend")
	}

	return cfg, nil
}
