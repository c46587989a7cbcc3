package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wafscan/wafscan/internal/results"
	"github.com/wafscan/wafscan/internal/scan"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SCAN_MAX_PARALLELISM", "SCAN_TIMEOUT", "SCAN_MAX_ATTEMPTS", "SCAN_RETRY_BASE_DELAY",
		"SCAN_RETRY_MAX_DELAY", "CACHE_TTL", "CACHE_MAX_ENTRIES", "CACHE_DATABASE_URL",
		"INVENTORY_SOURCE", "INVENTORY_FIXTURE_PATH", "AWS_REGION", "AWS_CONFIG_AGGREGATOR",
		"METRICS_ADDR", "SCAN_PROFILE", "SCAN_OUTPUT_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadWithOptions_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithOptions(LoadOptions{})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if got := cfg.ScanConfig(); got != scan.DefaultConfig() {
		t.Fatalf("ScanConfig() = %+v, want %+v", got, scan.DefaultConfig())
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Fatalf("CacheTTL = %s, want 30m", cfg.CacheTTL)
	}
	if cfg.InventorySource != InventoryFixture {
		t.Fatalf("InventorySource = %q, want fixture", cfg.InventorySource)
	}
	if cfg.OutputDir != "reports" || cfg.MetricsAddr != "off" {
		t.Fatalf("OutputDir, MetricsAddr = %q, %q, want reports, off", cfg.OutputDir, cfg.MetricsAddr)
	}
}

func TestLoadWithOptions_ParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCAN_MAX_PARALLELISM", "12")
	t.Setenv("SCAN_TIMEOUT", "90s")
	t.Setenv("SCAN_MAX_ATTEMPTS", "5")
	t.Setenv("SCAN_RETRY_BASE_DELAY", "500ms")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("CACHE_MAX_ENTRIES", "256")
	t.Setenv("INVENTORY_SOURCE", "AWSConfig")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := scan.Config{
		MaxParallelism: 12,
		Timeout:        90 * time.Second,
		MaxAttempts:    5,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       scan.DefaultMaxDelay,
	}
	if got := cfg.ScanConfig(); got != want {
		t.Fatalf("ScanConfig() = %+v, want %+v", got, want)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.CacheMaxEntries != 256 {
		t.Fatalf("cache = %s/%d, want 5m/256", cfg.CacheTTL, cfg.CacheMaxEntries)
	}
	if cfg.InventorySource != InventoryAWSConfig {
		t.Fatalf("InventorySource = %q, want awsconfig", cfg.InventorySource)
	}
}

func TestLoadWithOptions_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCAN_MAX_PARALLELISM", "lots")
	t.Setenv("SCAN_TIMEOUT", "-1s")

	cfg, err := LoadWithOptions(LoadOptions{})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.MaxParallelism != scan.DefaultMaxParallelism || cfg.Timeout != scan.DefaultTimeout {
		t.Fatalf("MaxParallelism, Timeout = %d, %s, want defaults", cfg.MaxParallelism, cfg.Timeout)
	}
}

func TestLoad_RequiresInventorySettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "fixture without path", env: map[string]string{"INVENTORY_SOURCE": "fixture"}, wantErr: "INVENTORY_FIXTURE_PATH"},
		{name: "awsconfig without region", env: map[string]string{"INVENTORY_SOURCE": "awsconfig"}, wantErr: "AWS_REGION"},
		{name: "unknown source", env: map[string]string{"INVENTORY_SOURCE": "azure"}, wantErr: "INVENTORY_SOURCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
name: production
subscriptions: ["111122223333", "444455556666"]
include:
  pillars: [Security, operational-excellence]
  checks: [co01]
  tags: [ebs]
exclude:
  checks: [se01]
scan:
  maxParallelism: 10
  timeout: 2m
`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if p.Name != "production" || len(p.Subscriptions) != 2 {
		t.Fatalf("LoadProfile() = %+v", p)
	}

	f, err := p.Filter()
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(f.IncludePillars) != 2 || f.IncludePillars[0] != results.PillarSecurity || f.IncludePillars[1] != results.PillarOperations {
		t.Fatalf("IncludePillars = %v", f.IncludePillars)
	}
	if len(f.IncludeIDs) != 1 || f.IncludeIDs[0] != "CO01" || f.ExcludeIDs[0] != "SE01" {
		t.Fatalf("IncludeIDs, ExcludeIDs = %v, %v", f.IncludeIDs, f.ExcludeIDs)
	}

	cfg := Config{MaxParallelism: 5, Timeout: time.Minute, MaxAttempts: 3}
	p.Apply(&cfg)
	if cfg.MaxParallelism != 10 || cfg.Timeout != 2*time.Minute || cfg.MaxAttempts != 3 {
		t.Fatalf("Apply() = %+v", cfg)
	}
}

func TestLoadProfile_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown key", body: "subscriptionz: [a]\n"},
		{name: "unknown pillar", body: "include:\n  pillars: [sustainability]\n"},
		{name: "bad timeout", body: "scan:\n  timeout: soon\n"},
		{name: "exclude tags", body: "exclude:\n  tags: [ebs]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadProfile(writeProfile(t, tt.body)); err == nil {
				t.Fatalf("LoadProfile() error = nil, want non-nil")
			}
		})
	}

	if _, err := LoadProfile(""); err == nil {
		t.Fatalf("LoadProfile(\"\") error = nil, want non-nil")
	}
}
