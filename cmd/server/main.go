package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/version"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"slurmemu/config"
	docs "slurmemu/internal/app/docs"
	"slurmemu/internal/app/router"
	"slurmemu/internal/module/accounting"
	"slurmemu/internal/module/timectl"
	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/limits"
	"slurmemu/internal/pkg/qos"
	"slurmemu/internal/pkg/slurmconf"
	"slurmemu/internal/pkg/statefile"
	"slurmemu/internal/pkg/store"
	"slurmemu/internal/pkg/usage"
)

// @title           slurmemu
// @version         0.1.0
// @description     SLURM accounting subsystem emulator
// @schema          http
// @BasePath        /api/v1
func main() {
	// CLI flags
	var (
		addrFlag        = kingpin.Flag("addr", "Server listen address (e.g. :8080 or 127.0.0.1:8080)").Default(":8080").Envar("SLURMEMU_ADDR").String()
		shutdownTimeout = kingpin.Flag("shutdown-timeout", "Graceful shutdown timeout (e.g. 10s)").Default("10s").Envar("SLURMEMU_SHUTDOWN_TIMEOUT").String()
		logFormat       = kingpin.Flag("log-format", "Log format").Default("text").Envar("SLURMEMU_LOG_FORMAT").Enum("text", "json")
		logOutput       = kingpin.Flag("log-output", "Log output destination").Default("stdout").Envar("SLURMEMU_LOG_OUTPUT").Enum("stdout", "stderr", "file")
		logFile         = kingpin.Flag("log-file", "Log file path (used when --log-output=file)").Envar("SLURMEMU_LOG_FILE").String()
		configFile      = kingpin.Flag("config", "Path to YAML config file").Short('c').Default("config.yaml").Envar("SLURMEMU_CONFIG").String()
		slurmConf       = kingpin.Flag("slurm-conf", "Path to a slurm.conf to interpret (overrides config)").Envar("SLURMEMU_SLURM_CONF").String()
		stateDir        = kingpin.Flag("state-dir", "Directory for state snapshots (overrides config)").Envar("SLURMEMU_STATE_DIR").String()
	)
	kingpin.Version(version.Print("slurmemu"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger, cleanup, err := newLogger(*logOutput, *logFormat, *logFile)
	if err != nil {
		// Fallback to stderr if logger setup fails
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Load config; the emulator runs fine on defaults without one.
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Warn("config not loaded, using defaults", slog.String("path", *configFile), slog.Any("err", err))
		cfg = &config.Config{}
	}
	emu := cfg.Server.Emulator
	if *slurmConf != "" {
		emu.SlurmConf = *slurmConf
	}
	if *stateDir != "" {
		emu.StateDir = *stateDir
	}

	// Interpret slurm.conf, or fall back to documented defaults.
	sconf := slurmconf.Default()
	if emu.SlurmConf != "" {
		sconf, err = slurmconf.Load(emu.SlurmConf)
		if err != nil {
			logger.Error("failed to load slurm config", slog.String("path", emu.SlurmConf), slog.Any("err", err))
			os.Exit(1)
		}
		for _, w := range sconf.Validate() {
			logger.Warn("slurm config warning", slog.String("warning", w))
		}
	}

	// State snapshots are best-effort; an empty state dir disables them.
	var clockState *statefile.Store
	var storeState *statefile.Store
	if emu.StateDir != "" {
		clockState = statefile.New(filepath.Join(emu.StateDir, "time.json"), logger)
		storeState = statefile.New(filepath.Join(emu.StateDir, "db.json"), logger)
	}

	// Assemble the engine; everything is passed explicitly.
	clk := clock.New(clockState, logger)
	db := store.New(storeState, logger)
	injector := usage.New(clk, db, logger)
	calc := limits.New(db, clk, sconf, logger)
	qosMgr := qos.New(db, clk, logger)

	clk.Subscribe(func() {
		logger.Info("period check", slog.String("period", clk.Period()))
	})

	// Build router
	accounting.RegisterValidations()
	r := router.New()
	docs.SwaggerInfo.BasePath = "/api/v1"
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	opts := limits.DefaultOptions()
	if emu.GraceRatio > 0 {
		opts.GraceRatio = emu.GraceRatio
	}
	opts.CarryoverEnabled = !emu.DisableCarryover

	router.Register(
		accounting.Router{Store: db, Injector: injector, Calc: calc, QOS: qosMgr, Options: &opts},
		timectl.Router{Clock: clk},
	)
	router.MountAll(r)

	addr := *addrFlag

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", slog.Any("err", err))
			os.Exit(1)
		}
	case <-quit:
		// proceed to shutdown
	}
	logger.Info("shutting down server...")

	to, err := time.ParseDuration(*shutdownTimeout)
	if err != nil || to <= 0 {
		to = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), to)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}
	db.SaveState()
	logger.Info("server exiting")
}

func newLogger(logOutput, logFormat, logFile string) (*slog.Logger, func(), error) {
	var w io.Writer
	var closer io.Closer
	switch logOutput {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "file":
		if logFile == "" {
			return nil, nil, fmt.Errorf("--log-file is required when --log-output=file")
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closer = f
	default:
		return nil, nil, fmt.Errorf("unsupported log output: %s", logOutput)
	}

	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: false})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: false})
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s", logFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	cleanup := func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
	return logger, cleanup, nil
}
