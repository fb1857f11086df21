package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9999"
node:
  rpc_url: "http://node:9005"
cache:
  backend: redis
  redis:
    addr: "localhost:6379"
catalog:
  refresh_schedule: "@every 1m"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Fatalf("listen not overridden: %s", cfg.Listen)
	}
	if cfg.Node.RPCURL != "http://node:9005" {
		t.Fatalf("rpc url not overridden: %s", cfg.Node.RPCURL)
	}
	if cfg.Catalog.RefreshSchedule != "@every 1m" {
		t.Fatalf("schedule not overridden: %s", cfg.Catalog.RefreshSchedule)
	}
	// Untouched fields keep their defaults.
	if cfg.Registry.Fee != "0.01" {
		t.Fatalf("default fee lost: %s", cfg.Registry.Fee)
	}
}

func TestLoadFromPath_RejectsUnknownCacheBackend(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: etcd
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected backend validation error")
	}
}

func TestLoadFromPath_RedisRequiresAddr(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: redis
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected redis addr validation error")
	}
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("defaults not applied: %+v", cfg.Cache)
	}
}
