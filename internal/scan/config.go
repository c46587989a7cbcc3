package scan

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxParallelism = 5
	DefaultTimeout        = 300 * time.Second
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 30 * time.Second
)

// Config bounds how a scan runs. Zero fields take the defaults above.
type Config struct {
	// MaxParallelism is the number of work units evaluated at once.
	MaxParallelism int
	// Timeout is the budget of one work unit, retries and backoff included.
	Timeout time.Duration
	// MaxAttempts counts the first try, so 3 means up to two retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxParallelism: DefaultMaxParallelism,
		Timeout:        DefaultTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxParallelism < 0 {
		errs = append(errs, fmt.Errorf("max parallelism must be >= 0, got %d", c.MaxParallelism))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", c.Timeout))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 0, got %d", c.MaxAttempts))
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must be >= 0"))
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		errs = append(errs, fmt.Errorf("retry base delay %s exceeds max delay %s", c.BaseDelay, c.MaxDelay))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = d.MaxParallelism
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}
