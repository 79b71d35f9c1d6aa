package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathMissingFileReturnsDefaults(t *testing.T) {
	cfg := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.MaxDependencyDepth != 16 {
		t.Fatalf("expected default max depth 16, got %d", cfg.MaxDependencyDepth)
	}
}

func TestLoadFromPathParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crypto-licensing.yaml")
	content := "search_path:\n  - /etc/crypto-licensing\ndns_timeout: 2s\nmax_dependency_depth: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := LoadFromPath(path)
	if len(cfg.SearchPath) != 1 || cfg.SearchPath[0] != "/etc/crypto-licensing" {
		t.Fatalf("unexpected search path: %+v", cfg.SearchPath)
	}
	if cfg.DNSTimeout != 2*time.Second {
		t.Fatalf("expected 2s dns timeout, got %v", cfg.DNSTimeout)
	}
	if cfg.MaxDependencyDepth != 4 {
		t.Fatalf("expected max depth 4, got %d", cfg.MaxDependencyDepth)
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto-licensing.yaml")
	if err := os.WriteFile(path, []byte("max_dependency_depth: 4\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CRYPTO_LIC_MAX_DEPTH", "8")
	cfg := LoadFromPath(path)
	if cfg.MaxDependencyDepth != 8 {
		t.Fatalf("expected env override 8, got %d", cfg.MaxDependencyDepth)
	}
}
