package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hession/dealscout/internal/aggregator"
	"github.com/hession/dealscout/internal/cache"
	"github.com/hession/dealscout/internal/cli"
	"github.com/hession/dealscout/internal/config"
	"github.com/hession/dealscout/internal/logger"
	"github.com/hession/dealscout/internal/provider"
	"github.com/hession/dealscout/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "dealscout",
		Short: "DealScout - product search across marketplaces",
		Long: `DealScout searches eBay, Amazon and Google Shopping in parallel and
merges the listings into one list.

Results are cached locally so repeated searches do not hit the
marketplaces again until the cache entry expires.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cli.Run(ctx, a.agg, a.cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newServeCmd())

	// config subcommand
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", path)
			return nil
		},
	})

	// version subcommand
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "DealScout v%s\n", version)
		},
	})

	return rootCmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit   int
		noCache bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "search <keyword...>",
		Short: "Run one search and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.Search.DefaultLimit
			}
			keyword := strings.Join(args, " ")

			report, err := a.agg.SearchWithReport(cmd.Context(), keyword, limit, !noCache)
			if err != nil {
				return err
			}
			if len(report.Results) > limit {
				report.Results = report.Results[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			cli.PrintResults(out, report.Results)
			cli.PrintProviderNotes(out, report.Providers)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results per provider (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
			return server.New(a.agg, addr, a.cfg.Search.DefaultLimit, logger.L()).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// app is the wired set of components shared by every command.
type app struct {
	cfg   *config.Config
	agg   *aggregator.Aggregator
	cache *cache.Cache
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warn("failed to close cache: %v", err)
		}
	}
	logger.Close()
}

func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		LogDir:     cfg.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.Console,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logConfigInfo(cfg)

	log := logger.L()
	a := &app{cfg: cfg}

	if cfg.Cache.Enabled {
		store, err := cache.OpenStore(cfg.Cache.Backend, cfg.Cache.Dir)
		if err != nil {
			// Searches still work without a cache.
			logger.Warn("cache unavailable, continuing without it: %v", err)
		} else {
			ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
			a.cache = cache.New(store, ttl, cache.WithLogger(log))
		}
	}

	providers := provider.FromConfig(cfg, log)
	a.agg, err = aggregator.New(providers, a.cache,
		aggregator.WithTimeout(time.Duration(cfg.Search.TimeoutSeconds)*time.Second),
		aggregator.WithLogger(log),
		aggregator.WithCoalescing(cfg.Search.CoalesceMisses),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if len(cfg.ConfiguredProviders()) == 0 {
		fmt.Fprintln(os.Stderr, "Warning: no provider credentials configured; set EBAY_APP_ID, RAPIDAPI_KEY or SERPAPI_KEY")
	}
	return a, nil
}

// logConfigInfo logs configuration at startup with credentials redacted
func logConfigInfo(cfg *config.Config) {
	logger.L().Info("configuration loaded",
		zap.Strings("providers", cfg.ConfiguredProviders()),
		zap.Int("timeout_seconds", cfg.Search.TimeoutSeconds),
		zap.Int("default_limit", cfg.Search.DefaultLimit),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.Int("cache_ttl_hours", cfg.Cache.TTLHours),
		zap.Bool("coalesce_misses", cfg.Search.CoalesceMisses),
	)
}
