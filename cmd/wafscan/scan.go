package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/cache"
	"github.com/wafscan/wafscan/internal/cache/pgstore"
	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/checks/catalog"
	"github.com/wafscan/wafscan/internal/config"
	"github.com/wafscan/wafscan/internal/inventory"
	"github.com/wafscan/wafscan/internal/inventory/awsconfig"
	"github.com/wafscan/wafscan/internal/metrics"
	"github.com/wafscan/wafscan/internal/results"
	"github.com/wafscan/wafscan/internal/scan"
)

type filterFlags struct {
	pillars        []string
	checks         []string
	tags           []string
	excludePillars []string
	excludeChecks  []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.pillars, "pillar", nil, "Only run checks in these pillars (repeatable)")
	cmd.Flags().StringSliceVar(&f.checks, "check", nil, "Only run these check ids (repeatable)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Only run checks carrying one of these tags (repeatable)")
	cmd.Flags().StringSliceVar(&f.excludePillars, "exclude-pillar", nil, "Skip checks in these pillars (repeatable)")
	cmd.Flags().StringSliceVar(&f.excludeChecks, "exclude-check", nil, "Skip these check ids (repeatable)")
}

// apply overlays flag selectors onto base. A selector given on the command
// line replaces the profile's value for that selector only.
func (f filterFlags) apply(base checks.Filter) (checks.Filter, error) {
	if len(f.pillars) > 0 {
		p, err := config.ParsePillars(f.pillars)
		if err != nil {
			return checks.Filter{}, fmt.Errorf("--pillar: %w", err)
		}
		base.IncludePillars = p
	}
	if len(f.excludePillars) > 0 {
		p, err := config.ParsePillars(f.excludePillars)
		if err != nil {
			return checks.Filter{}, fmt.Errorf("--exclude-pillar: %w", err)
		}
		base.ExcludePillars = p
	}
	if len(f.checks) > 0 {
		base.IncludeIDs = upperAll(f.checks)
	}
	if len(f.excludeChecks) > 0 {
		base.ExcludeIDs = upperAll(f.excludeChecks)
	}
	if len(f.tags) > 0 {
		base.IncludeTags = f.tags
	}
	return base, nil
}

type scanOptions struct {
	subscriptions    []string
	profile          string
	out              string
	outDir           string
	baseline         string
	failOnRegression bool
	metricsAddr      string
	filter           filterFlags
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:         "scan",
	Short:       "Run the check catalog against one or more subscriptions.",
	Annotations: structuredLogging(),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithOptions(config.LoadOptions{})
		if err != nil {
			return commandError(err)
		}
		return commandError(runScan(ctx, cfg, scanOpts, cmd.OutOrStdout(), slog.Default()))
	},
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanOpts.subscriptions, "subscription", nil, "Subscription (account) id to scan (repeatable)")
	scanCmd.Flags().StringVar(&scanOpts.profile, "profile", "", "Scan profile YAML file (default $SCAN_PROFILE)")
	scanCmd.Flags().StringVar(&scanOpts.out, "out", "", "Report path (default <out-dir>/<subscription>-<timestamp>.json)")
	scanCmd.Flags().StringVar(&scanOpts.outDir, "out-dir", "", "Report directory (default $SCAN_OUTPUT_DIR)")
	scanCmd.Flags().StringVar(&scanOpts.baseline, "baseline", "", "Previous report to diff against")
	scanCmd.Flags().BoolVar(&scanOpts.failOnRegression, "fail-on-regression", false, "Exit with status 2 when the baseline diff has new failures")
	scanCmd.Flags().StringVar(&scanOpts.metricsAddr, "metrics-addr", "", "Serve /metrics on this address during the scan (default $METRICS_ADDR)")
	scanOpts.filter.register(scanCmd)
}

func runScan(ctx context.Context, cfg config.Config, opts scanOptions, stdout io.Writer, logger *slog.Logger) error {
	profilePath := firstNonEmpty(opts.profile, cfg.ProfilePath)
	var profile config.Profile
	if profilePath != "" {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			return err
		}
		profile = p
		profile.Apply(&cfg)
	}

	subscriptions := opts.subscriptions
	if len(subscriptions) == 0 {
		subscriptions = profile.Subscriptions
	}
	if len(subscriptions) == 0 {
		return errors.New("at least one --subscription (or profile subscriptions) is required")
	}

	filter, err := profile.Filter()
	if err != nil {
		return err
	}
	if filter, err = opts.filter.apply(filter); err != nil {
		return err
	}

	if err := cfg.ValidateInventory(); err != nil {
		return err
	}
	if cfg.InventorySource == config.InventoryAWSConfig {
		var errs []error
		for _, sub := range subscriptions {
			errs = append(errs, awsconfig.ValidateAccountID(sub))
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	scanCfg := cfg.ScanConfig()
	if err := scanCfg.Validate(); err != nil {
		return err
	}

	reg, err := catalog.NewRegistry()
	if err != nil {
		return err
	}

	source, identity, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var store inventory.PersistentStore
	if cfg.CacheDatabaseURL != "" {
		pg, pool, err := pgstore.Open(ctx, cfg.CacheDatabaseURL)
		if err != nil {
			return fmt.Errorf("open cache database: %w", err)
		}
		defer pool.Close()
		if n, err := pg.PurgeExpired(ctx); err != nil {
			logger.Warn("purge expired cache entries failed", "error", err)
		} else if n > 0 {
			logger.Info("purged expired cache entries", "count", n)
		}
		store = pg
	}

	client, err := inventory.NewClient(source, inventory.ClientOptions{
		Cache: cache.New(cache.Options{
			DefaultTTL: cfg.CacheTTL,
			MaxEntries: cfg.CacheMaxEntries,
		}),
		Store:  store,
		TTL:    cfg.CacheTTL,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	exec, err := scan.NewExecutor(client, scanCfg)
	if err != nil {
		return err
	}
	exec.SetLogger(logger)
	exec.SetReporter(&scan.LogReporter{Logger: logger})

	metricsAddr := firstNonEmpty(opts.metricsAddr, cfg.MetricsAddr)
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if _, errCh := metrics.StartServer(metricsCtx, metricsAddr); errCh != nil {
		go func() {
			if err := <-errCh; err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("scan starting",
		"source", source.Name(),
		"subscriptions", len(subscriptions),
		"checks", len(reg.List(filter)),
		"max_parallelism", scanCfg.MaxParallelism,
	)

	started := time.Now()
	list, err := exec.Scan(ctx, reg, subscriptions, filter)
	if err != nil {
		return err
	}

	report := results.NewReport(subscriptions, list, started)
	report.CallerIdentity = identity
	report.Summary.Duration = time.Since(started)
	recordScores(report.Summary)

	path := opts.out
	if path == "" {
		name := "scan"
		if len(subscriptions) == 1 {
			name = subscriptions[0]
		}
		path = filepath.Join(firstNonEmpty(opts.outDir, cfg.OutputDir), results.FileName(name, started))
	}
	if err := results.WriteReport(path, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written", "path", path, "run_id", report.RunID, "results", len(list))

	if err := writeSummaryTable(stdout, report.Summary); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nreport: %s\n", path)

	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.baseline == "" {
		return nil
	}
	base, err := results.ReadReport(opts.baseline)
	if err != nil {
		return fmt.Errorf("read baseline: %w", err)
	}
	diff := results.Compare(list, base.Results)
	fmt.Fprintln(stdout)
	if err := writeDiffTable(stdout, diff); err != nil {
		return err
	}
	if opts.failOnRegression && diff.HasRegressions() {
		return &exitError{
			code: exitCodeRegressions,
			err:  fmt.Errorf("%d new failures against baseline %s", len(diff.NewFailures), opts.baseline),
		}
	}
	return nil
}

// openSource builds the configured inventory source. The second return value
// is the caller identity when the source can report one.
func openSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (inventory.Source, string, error) {
	switch cfg.InventorySource {
	case config.InventoryFixture:
		src, err := inventory.LoadFixtureFile(cfg.InventoryFixturePath)
		if err != nil {
			return nil, "", err
		}
		return src, "", nil
	case config.InventoryAWSConfig:
		src, err := awsconfig.New(ctx, awsconfig.Options{
			Region:          cfg.AWSRegion,
			Aggregator:      cfg.AWSConfigAggregator,
			AuthType:        cfg.AWSAuthType,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			SessionToken:    cfg.AWSSessionToken,
		})
		if err != nil {
			return nil, "", err
		}
		identity, err := src.CallerIdentity(ctx)
		if err != nil {
			logger.Warn("caller identity lookup failed", "error", err)
		}
		return src, identity, nil
	default:
		return nil, "", fmt.Errorf("unsupported inventory source %q", cfg.InventorySource)
	}
}

func recordScores(s results.ScanSummary) {
	metrics.ComplianceScore.WithLabelValues("overall").Set(s.ComplianceScore)
	for _, p := range s.ByPillar {
		metrics.ComplianceScore.WithLabelValues(string(p.Pillar)).Set(p.ComplianceScore)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
