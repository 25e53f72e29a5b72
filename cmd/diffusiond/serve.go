package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"diffusiond/internal/config"
	"diffusiond/internal/httpapi"
	"diffusiond/internal/manager"
	"diffusiond/internal/registry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP sampling server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.String("config", envStr("DIFFUSIOND_CONFIG", ""), "Config file (.yaml, .yml, .json or .toml)")
	f.String("addr", envStr("DIFFUSIOND_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	f.String("models-dir", envStr("DIFFUSIOND_MODELS_DIR", "~/models/diffusion"), "Directory to scan for checkpoints")
	f.Bool("models-recursive", envBool("DIFFUSIOND_MODELS_RECURSIVE", false), "Scan models-dir recursively")
	f.Int("vram-budget-mb", envInt("DIFFUSIOND_VRAM_BUDGET_MB", 0), "Memory budget in MB for all instances (0=unlimited)")
	f.Int("vram-margin-mb", envInt("DIFFUSIOND_VRAM_MARGIN_MB", 0), "Reserved memory margin in MB to keep free")
	f.String("default-model", envStr("DIFFUSIOND_DEFAULT_MODEL", ""), "Default model id when a request omits model")
	f.Int("max-queue-depth", envInt("DIFFUSIOND_MAX_QUEUE_DEPTH", 0), "Per-model queue depth (0=default)")
	f.Int("max-wait-seconds", envInt("DIFFUSIOND_MAX_WAIT_SECONDS", 0), "Maximum queue wait in seconds (0=default)")
	f.Int("drain-timeout-seconds", envInt("DIFFUSIOND_DRAIN_TIMEOUT_SECONDS", 0), "Unload drain timeout in seconds (0=default)")
	f.Int64("max-body-bytes", int64(envInt("DIFFUSIOND_MAX_BODY_BYTES", 0)), "Maximum request body size (0=default)")
	f.Int64("sample-timeout-seconds", int64(envInt("DIFFUSIOND_SAMPLE_TIMEOUT_SECONDS", 0)), "Per-request sample timeout in seconds (0=none)")
	f.Bool("cors-enabled", envBool("DIFFUSIOND_CORS_ENABLED", false), "Enable CORS")
	f.String("cors-origins", envStr("DIFFUSIOND_CORS_ORIGINS", ""), "Comma separated allowed origins")
	f.String("cors-methods", envStr("DIFFUSIOND_CORS_METHODS", "GET,POST,OPTIONS"), "Comma separated allowed methods")
	f.String("cors-headers", envStr("DIFFUSIOND_CORS_HEADERS", "Content-Type,X-Log-Level"), "Comma separated allowed headers")
}

// serveConfig layers the command line over the config file: a flag wins when
// it was set explicitly or when the file leaves the field empty.
func serveConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	var cfg config.Config
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	str := func(name string, dst *string) {
		if v, _ := f.GetString(name); f.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, _ := f.GetInt(name); f.Changed(name) || *dst == 0 {
			*dst = v
		}
	}
	num64 := func(name string, dst *int64) {
		if v, _ := f.GetInt64(name); f.Changed(name) || *dst == 0 {
			*dst = v
		}
	}
	flag := func(name string, dst *bool) {
		if v, _ := f.GetBool(name); f.Changed(name) || !*dst {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, _ := f.GetString(name); f.Changed(name) || len(*dst) == 0 {
			*dst = splitCSV(v)
		}
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("addr", &cfg.Addr)
	str("models-dir", &cfg.ModelsDir)
	flag("models-recursive", &cfg.ModelsRecursive)
	num("vram-budget-mb", &cfg.VRAMBudgetMB)
	num("vram-margin-mb", &cfg.VRAMMarginMB)
	str("default-model", &cfg.DefaultModel)
	num("max-queue-depth", &cfg.MaxQueueDepth)
	num("max-wait-seconds", &cfg.MaxWaitSeconds)
	num("drain-timeout-seconds", &cfg.DrainTimeoutSeconds)
	num64("max-body-bytes", &cfg.MaxBodyBytes)
	num64("sample-timeout-seconds", &cfg.SampleTimeoutSeconds)
	flag("cors-enabled", &cfg.CORS.Enabled)
	list("cors-origins", &cfg.CORS.Origins)
	list("cors-methods", &cfg.CORS.Methods)
	list("cors-headers", &cfg.CORS.Headers)
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defaults, err := cfg.SamplerDefaults()
	if err != nil {
		return err
	}

	reg, err := (&registry.Scanner{Recursive: cfg.ModelsRecursive}).Scan(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	log.Info().Int("models", len(reg)).Str("dir", cfg.ModelsDir).Msg("registry loaded")

	mlog := log.With().Str("component", "manager").Logger()
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:      reg,
		BudgetMB:      cfg.VRAMBudgetMB,
		MarginMB:      cfg.VRAMMarginMB,
		DefaultModel:  cfg.DefaultModel,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
		DrainTimeout:  time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		AuxEntries:    cfg.Sampling.AuxCacheEntries,
		Defaults:      &defaults,
		Logger:        &mlog,
	})
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetSampleTimeoutSeconds(cfg.SampleTimeoutSeconds)
	httpapi.SetDefaultScaleFactor(defaults.ScaleFactor)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("diffusiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown did not complete")
			return srv.Close()
		}
		return nil
	})
	return g.Wait()
}
