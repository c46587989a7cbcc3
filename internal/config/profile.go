package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/results"
	"gopkg.in/yaml.v3"
)

// Profile is a saved scan selection, read from YAML:
//
//	name: production
//	subscriptions: ["111122223333"]
//	include: {pillars: [security], checks: [CO01], tags: [ebs]}
//	exclude: {checks: [SE01]}
//	scan: {maxParallelism: 10, timeout: 2m}
type Profile struct {
	Name          string          `yaml:"name"`
	Subscriptions []string        `yaml:"subscriptions"`
	Include       ProfileSelector `yaml:"include"`
	Exclude       ProfileSelector `yaml:"exclude"`
	Scan          ProfileScan     `yaml:"scan"`
}

type ProfileSelector struct {
	Pillars []string `yaml:"pillars"`
	Checks  []string `yaml:"checks"`
	Tags    []string `yaml:"tags"`
}

type ProfileScan struct {
	MaxParallelism int    `yaml:"maxParallelism"`
	Timeout        string `yaml:"timeout"`
	MaxAttempts    int    `yaml:"maxAttempts"`
}

// LoadProfile reads a profile file. Unknown keys are rejected so that typos
// do not silently widen a scan.
func LoadProfile(path string) (Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Profile{}, errors.New("profile path is empty")
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Profile{}, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	var p Profile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if _, err := p.Filter(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	if p.Scan.Timeout != "" {
		if _, err := time.ParseDuration(p.Scan.Timeout); err != nil {
			return Profile{}, fmt.Errorf("profile %s: scan.timeout: %w", path, err)
		}
	}
	return p, nil
}

// Filter converts the include/exclude selectors into a registry filter.
func (p Profile) Filter() (checks.Filter, error) {
	include, err := ParsePillars(p.Include.Pillars)
	if err != nil {
		return checks.Filter{}, fmt.Errorf("include.pillars: %w", err)
	}
	exclude, err := ParsePillars(p.Exclude.Pillars)
	if err != nil {
		return checks.Filter{}, fmt.Errorf("exclude.pillars: %w", err)
	}
	if len(p.Exclude.Tags) > 0 {
		return checks.Filter{}, errors.New("exclude.tags is not supported")
	}
	return checks.Filter{
		IncludePillars: include,
		IncludeIDs:     upper(p.Include.Checks),
		IncludeTags:    p.Include.Tags,
		ExcludePillars: exclude,
		ExcludeIDs:     upper(p.Exclude.Checks),
	}, nil
}

// Apply overlays the profile's scan settings onto cfg.
func (p Profile) Apply(cfg *Config) {
	if p.Scan.MaxParallelism > 0 {
		cfg.MaxParallelism = p.Scan.MaxParallelism
	}
	if p.Scan.MaxAttempts > 0 {
		cfg.MaxAttempts = p.Scan.MaxAttempts
	}
	if d, err := time.ParseDuration(p.Scan.Timeout); err == nil && d > 0 {
		cfg.Timeout = d
	}
}

// ParsePillars parses user-supplied pillar names, skipping blanks.
func ParsePillars(values []string) ([]results.Pillar, error) {
	var out []results.Pillar
	var errs []error
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := results.ParsePillar(v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func upper(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
			out = append(out, id)
		}
	}
	return out
}
