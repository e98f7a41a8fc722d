package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	httpapi "github.com/i474232898/nwp-ensemble/internal/api/http"
	"github.com/i474232898/nwp-ensemble/internal/config"
	"github.com/i474232898/nwp-ensemble/internal/ensemble"
	"github.com/i474232898/nwp-ensemble/internal/nwp"
	"github.com/i474232898/nwp-ensemble/internal/store"
)

type rootFlags struct {
	providers    string
	hours        int
	step         int
	workers      int
	outDir       string
	skipDownload bool
	skipExisting bool
	serve        bool
	port         string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "nwp-ensemble",
		Short: "Retrieve multi-model NWP forecasts and compute ensemble statistics",
		Long: `nwp-ensemble performs one retrieval pass against the public catalogs of
GFS, ICON, CMC, HRRR, NAM, RAP and NBM: it resolves each provider's latest
published run, downloads the requested forecast files, and computes
cross-model ensemble statistics over whatever was retrieved.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Flags(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.providers, "providers", "", "comma-separated subset of providers (default: all)")
	cmd.Flags().IntVar(&flags.hours, "hours", 72, "total forecast hours to retrieve")
	cmd.Flags().IntVar(&flags.step, "step", 0, "forecast-hour step (0 = provider default)")
	cmd.Flags().IntVar(&flags.workers, "workers", nwp.DefaultWorkers, "max concurrent downloads per provider")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "output directory for downloaded files")
	cmd.Flags().BoolVar(&flags.skipDownload, "skip-download", false, "skip retrieval and analyze files already on disk")
	cmd.Flags().BoolVar(&flags.skipExisting, "skip-existing", false, "do not re-download files that already exist")
	cmd.Flags().BoolVar(&flags.serve, "serve", false, "serve retrieval results over HTTP after the pass")
	cmd.Flags().StringVar(&flags.port, "port", "", "HTTP port for serve mode")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func run(fs *pflag.FlagSet, flags *rootFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flag overrides. Provider validation happens here, before any network
	// activity: an unknown name is a hard error.
	if fs.Changed("providers") {
		providers, err := nwp.ParseProviders(flags.providers)
		if err != nil {
			return err
		}
		cfg.Providers = providers
	}
	if fs.Changed("hours") {
		cfg.Hours = flags.hours
	}
	if fs.Changed("step") {
		cfg.Step = flags.step
	}
	if fs.Changed("workers") {
		cfg.Workers = flags.workers
	}
	if fs.Changed("out") {
		cfg.OutDir = flags.outDir
	}
	if fs.Changed("port") {
		cfg.Port = flags.port
	}
	cfg.SkipDownload = flags.skipDownload
	cfg.SkipExisting = flags.skipExisting
	cfg.Serve = flags.serve

	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(flags.logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	var summaries []nwp.Summary
	if cfg.SkipDownload {
		summaries = summarizeExisting(cfg, memStore, log)
	} else {
		service := nwp.NewService(nwp.DefaultRegistry(), memStore, nwp.Options{
			Client:  &http.Client{},
			OutDir:  cfg.OutDir,
			Workers: cfg.Workers,
			Backoff: nwp.BackoffConfig{MaxRetries: cfg.MaxRetries, Base: time.Second, Max: 30 * time.Second},
		}, log)

		summaries = service.FetchAll(ctx, cfg.Providers, nwp.Request{
			Variables:    cfg.Variables,
			Hours:        cfg.Hours,
			Step:         cfg.Step,
			Region:       cfg.Region,
			SkipExisting: cfg.SkipExisting,
		})
	}

	for _, s := range summaries {
		evt := log.Info().
			Str("provider", string(s.Provider)).
			Int("planned", s.Planned).
			Int("succeeded", s.Succeeded).
			Int("failed", s.Failed).
			Int("skipped", s.Skipped)
		if s.Run != nil {
			evt = evt.Str("run", s.Run.String())
		} else {
			evt = evt.Str("run", "none")
		}
		evt.Msg("retrieval summary")
	}

	// Normalize and analyze whatever was retrieved. The GRIB2 decoding
	// backend is pluggable; the default decodes nothing, which leaves the
	// stats endpoints empty but keeps retrieval fully functional.
	var decoder ensemble.Decoder = ensemble.NoopDecoder{}
	var records []ensemble.Record
	for _, s := range summaries {
		records = append(records,
			ensemble.LoadRecords(decoder, strings.ToUpper(string(s.Provider)), s.Files, log)...)
	}
	analysis := ensemble.Analyze(records)

	if !cfg.Serve {
		return nil
	}
	return serveResults(ctx, cfg, memStore, analysis, log)
}

// summarizeExisting builds per-provider summaries from files already on
// disk, so --skip-download can feed previously retrieved data straight into
// analysis.
func summarizeExisting(cfg *config.AppConfig, memStore *store.MemoryStore, log zerolog.Logger) []nwp.Summary {
	var summaries []nwp.Summary
	for _, provider := range cfg.Providers {
		pattern := filepath.Join(cfg.OutDir, string(provider), "*.grib2")
		files, err := filepath.Glob(pattern)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(provider)).Msg("globbing existing files failed")
			continue
		}
		sort.Strings(files)

		now := time.Now().UTC()
		summary := nwp.Summary{
			Provider:  provider,
			Planned:   len(files),
			Succeeded: len(files),
			Files:     files,
			Started:   now,
			Finished:  now,
		}
		memStore.SaveSummary(summary)
		summaries = append(summaries, summary)
	}
	return summaries
}

// serveResults exposes retrieval summaries and ensemble statistics over a
// small read-only API until the process is signalled.
func serveResults(ctx context.Context, cfg *config.AppConfig, memStore *store.MemoryStore, analysis ensemble.Analysis, log zerolog.Logger) error {
	app := fiber.New(fiber.Config{
		AppName:               "nwp-ensemble",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "nwp-ensemble",
		})
	})

	httpapi.RegisterRoutes(app, memStore, func() ensemble.Analysis { return analysis })

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("serving retrieval results")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
