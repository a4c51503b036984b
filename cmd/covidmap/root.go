package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/covid-map-etl/internal/adapter/http"
	"github.com/couchcryptid/covid-map-etl/internal/config"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/couchcryptid/covid-map-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type mode int

const (
	modeRun mode = iota
	modeReconcile
	modeRender
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "covidmap",
		Short: "Render daily municipality case counts as an animated map",
		Long: `covidmap downloads the Statbel statistical sectors and the Sciensano
municipality case counts, reconciles them into a complete municipality x date
grid, smooths it with a seven-day trailing mean and renders one map per day
into <N>_days_of_covid.gif.

Settings come from the environment (optionally loaded from --env-file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Flags override the matching environment settings when set.
	pf := root.PersistentFlags()
	pf.String("env-file", "", "load environment variables from this file first")
	pf.Bool("refresh-geometry", true, "download the sector geometry instead of using the cache")
	pf.Bool("refresh-cases", true, "download the case counts instead of using the cache")
	pf.String("frames-dir", "", "also write every frame as a PNG into this directory")
	pf.Int("max-frames", 0, "render at most this many days (0 renders all)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Reconcile the sources and render the animation",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, modeRun)
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Load both sources and write the reconciled grid file",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, modeReconcile)
			},
		},
		&cobra.Command{
			Use:   "render",
			Short: "Render the animation from the reconciled grid file",
			Long: `render reads the grid file written by "reconcile" and the cached
region geometry. Geometry is only downloaded again with --refresh-geometry.`,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, modeRender)
			},
		},
	)
	return root
}

func loadConfig(cmd *cobra.Command, m mode) (*config.Config, error) {
	pf := cmd.Flags()
	if envFile, _ := pf.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	switch {
	case pf.Changed("refresh-geometry"):
		cfg.RefreshGeometry, _ = pf.GetBool("refresh-geometry")
	case m == modeRender:
		cfg.RefreshGeometry = false
	}
	if pf.Changed("refresh-cases") {
		cfg.RefreshCases, _ = pf.GetBool("refresh-cases")
	}
	if pf.Changed("frames-dir") {
		cfg.FramesDir, _ = pf.GetString("frames-dir")
	}
	if pf.Changed("max-frames") {
		n, _ := pf.GetInt("max-frames")
		if n < 0 {
			return nil, errors.New("--max-frames must not be negative")
		}
		cfg.MaxFrames = n
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, m mode) error {
	cfg, err := loadConfig(cmd, m)
	if err != nil {
		slog.Error("failed to load config", "stage", domain.StageConfig, "error", err)
		return domain.WrapStage(domain.StageConfig, err)
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat).With("run_id", runID)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(cfg, runID, logger, metrics)
	if err != nil {
		logger.Error("failed to build pipeline", "stage", domain.StageConfig, "error", err)
		return domain.WrapStage(domain.StageConfig, err)
	}
	defer app.close()

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, app.pipeline, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		logger.Info("ops server listening", "addr", cfg.HTTPAddr)
	}

	var res pipeline.Result
	switch m {
	case modeReconcile:
		res, err = app.pipeline.Reconcile(ctx)
	case modeRender:
		res, err = app.pipeline.Render(ctx)
	default:
		res, err = app.pipeline.Run(ctx)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error("http server shutdown error", "error", serr)
		}
	}
	if err != nil {
		return err
	}

	if res.Output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.Output)
	}
	return nil
}
