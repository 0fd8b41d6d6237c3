package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricewatch/backend/config"
	httpDelivery "github.com/pricewatch/backend/internal/delivery/http"
	"github.com/pricewatch/backend/internal/domain"
	"github.com/pricewatch/backend/internal/infrastructure/cache"
	"github.com/pricewatch/backend/internal/infrastructure/feed"
	"github.com/pricewatch/backend/internal/infrastructure/ratelimit"
	"github.com/pricewatch/backend/internal/infrastructure/report"
	"github.com/pricewatch/backend/internal/infrastructure/scrape"
	"github.com/pricewatch/backend/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime)
	log.SetOutput(os.Stdout)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pricewatch",
		Short: "Compare merchant feed prices against competitor storefronts",
		Long: `pricewatch matches manufacturer reference codes from a product feed
against competitor stores, caching per-store verdicts and pacing
outbound requests adaptively.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())
	return root
}

// engine bundles the wired core components
type engine struct {
	cfg   *config.Config
	store *cache.FileStore
	pacer *ratelimit.Pacer
	svc   *usecase.ComparisonService
}

// buildEngine wires configuration into the core: cache handle, pacer,
// scraper registry, comparison service. One engine per run.
func buildEngine(cfg *config.Config) (*engine, error) {
	store, err := cache.NewFileStore(cache.Config{
		Dir:         cfg.Cache.Dir,
		TTLFound:    time.Duration(cfg.Cache.TTLFoundDays) * 24 * time.Hour,
		TTLNotFound: time.Duration(cfg.Cache.TTLNotFoundDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	pacer := ratelimit.NewPacer(ratelimit.Config{
		MinGapSeconds:      cfg.RateLimit.MinGapSeconds,
		SlowModeMultiplier: cfg.RateLimit.SlowModeMultiplier,
		CircuitThreshold:   cfg.RateLimit.CircuitThreshold,
		WindowSize:         cfg.RateLimit.WindowSize,
		JitterMin:          ratelimit.DefaultConfig.JitterMin,
		JitterMax:          ratelimit.DefaultConfig.JitterMax,
		EnableDebugLogging: cfg.Matching.EnableDebugLogging,
	})

	scrapers := make(map[string]domain.Scraper, len(cfg.Stores))
	for storeID, searchURL := range cfg.Stores {
		scrapers[storeID] = scrape.NewGeneric(storeID, searchURL)
	}

	svc := usecase.NewComparisonService(store, pacer, scrapers, usecase.ComparisonServiceConfig{
		AcceptThreshold:    cfg.Matching.AcceptThreshold,
		EnableDebugLogging: cfg.Matching.EnableDebugLogging,
	})

	return &engine{cfg: cfg, store: store, pacer: pacer, svc: svc}, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a full feed-vs-stores comparison and write the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if len(cfg.Stores) == 0 {
				return fmt.Errorf("no stores configured (set stores in config.yaml)")
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			if removed, err := eng.store.PurgeExpired(time.Now()); err != nil {
				log.Printf("[CACHE] startup purge failed: %v", err)
			} else if removed > 0 {
				log.Printf("[CACHE] purged %d expired entries at startup", removed)
			}

			products, err := feed.ParseFile(cfg.Feed.Path)
			if err != nil {
				return fmt.Errorf("parsing feed: %w", err)
			}
			log.Printf("[RUN] %d products, %d stores", len(products), len(cfg.Stores))

			rows, err := eng.svc.CompareAll(cmd.Context(), products)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(cfg.Report.Path), 0o755); err != nil {
				return fmt.Errorf("creating report dir: %w", err)
			}
			if err := report.NewWriter(cfg.Report.Path).Write(rows); err != nil {
				return err
			}

			stats := eng.pacer.Stats()
			log.Printf("[RUN] done: %d rows, fail rate %.0f%%, slow mode %v",
				len(rows), stats.RecentFailRate*100, stats.SlowMode)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine stats and scoring API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			handler := httpDelivery.NewHandler(eng.store, eng.pacer, eng.svc.Validator())
			router := httpDelivery.SetupRouter(cfg, handler)

			addr := fmt.Sprintf(":%s", cfg.Server.Port)
			log.Printf("[SERVE] listening on %s (env: %s)", addr, cfg.Server.Environment)
			return router.Run(addr)
		},
	}
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the verdict cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats <store>",
		Short: "Show cache statistics for one store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			stats, err := eng.store.Stats(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("store:     %s\ntotal:     %d\nfound:     %d\nnot found: %d\nexpired:   %d\n",
				stats.StoreID, stats.Total, stats.Found, stats.NotFound, stats.Expired)
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries from every store namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			removed, err := eng.store.PurgeExpired(time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired entries\n", removed)
			return nil
		},
	})

	return cacheCmd
}
