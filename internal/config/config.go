package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/wafscan/wafscan/internal/cache"
	"github.com/wafscan/wafscan/internal/scan"
)

const (
	InventoryFixture   = "fixture"
	InventoryAWSConfig = "awsconfig"

	defaultOutputDir   = "reports"
	defaultMetricsAddr = "off"
)

type Config struct {
	MaxParallelism int
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CacheTTL         time.Duration
	CacheMaxEntries  int
	CacheDatabaseURL string

	InventorySource      string
	InventoryFixturePath string

	AWSRegion           string
	AWSConfigAggregator string
	AWSAuthType         string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSSessionToken     string

	ProfilePath string
	OutputDir   string
	MetricsAddr string
}

type LoadOptions struct {
	// RequireInventory validates the inventory source settings, which only
	// the scan command needs.
	RequireInventory bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireInventory: true})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		MaxParallelism: getenvIntDefault("SCAN_MAX_PARALLELISM", scan.DefaultMaxParallelism),
		Timeout:        getenvDurationDefault("SCAN_TIMEOUT", scan.DefaultTimeout),
		MaxAttempts:    getenvIntDefault("SCAN_MAX_ATTEMPTS", scan.DefaultMaxAttempts),
		RetryBaseDelay: getenvDurationDefault("SCAN_RETRY_BASE_DELAY", scan.DefaultBaseDelay),
		RetryMaxDelay:  getenvDurationDefault("SCAN_RETRY_MAX_DELAY", scan.DefaultMaxDelay),

		CacheTTL:         getenvDurationDefault("CACHE_TTL", cache.DefaultTTL),
		CacheMaxEntries:  getenvIntDefault("CACHE_MAX_ENTRIES", 0),
		CacheDatabaseURL: strings.TrimSpace(os.Getenv("CACHE_DATABASE_URL")),

		InventorySource:      strings.ToLower(strings.TrimSpace(getenvDefault("INVENTORY_SOURCE", InventoryFixture))),
		InventoryFixturePath: strings.TrimSpace(os.Getenv("INVENTORY_FIXTURE_PATH")),

		AWSRegion:           strings.TrimSpace(os.Getenv("AWS_REGION")),
		AWSConfigAggregator: strings.TrimSpace(os.Getenv("AWS_CONFIG_AGGREGATOR")),
		AWSAuthType:         strings.TrimSpace(getenvDefault("AWS_AUTH_TYPE", "default_chain")),
		AWSAccessKeyID:      strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		AWSSecretAccessKey:  strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		AWSSessionToken:     strings.TrimSpace(os.Getenv("AWS_SESSION_TOKEN")),

		ProfilePath: strings.TrimSpace(os.Getenv("SCAN_PROFILE")),
		OutputDir:   getenvDefault("SCAN_OUTPUT_DIR", defaultOutputDir),
		MetricsAddr: getenvDefault("METRICS_ADDR", defaultMetricsAddr),
	}

	if opts.RequireInventory {
		if err := cfg.ValidateInventory(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// ValidateInventory checks that the selected inventory source is usable.
func (c Config) ValidateInventory() error {
	switch c.InventorySource {
	case InventoryFixture:
		if c.InventoryFixturePath == "" {
			return errors.New("INVENTORY_FIXTURE_PATH is required when INVENTORY_SOURCE=fixture")
		}
	case InventoryAWSConfig:
		if c.AWSRegion == "" {
			return errors.New("AWS_REGION is required when INVENTORY_SOURCE=awsconfig")
		}
	default:
		return fmt.Errorf("INVENTORY_SOURCE must be one of: %s, %s", InventoryFixture, InventoryAWSConfig)
	}
	return nil
}

// ScanConfig returns the executor settings.
func (c Config) ScanConfig() scan.Config {
	return scan.Config{
		MaxParallelism: c.MaxParallelism,
		Timeout:        c.Timeout,
		MaxAttempts:    c.MaxAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
