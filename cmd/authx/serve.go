package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/api"
	"github.com/MrEthical07/authx/internal/config"
	"github.com/MrEthical07/authx/internal/logger"
	"github.com/MrEthical07/authx/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The process stops on SIGINT or SIGTERM, finishes in-flight
requests, and drains queued notifications before exiting.`,
		RunE: runServe,
	}

	cmd.Flags().Int("http.port", 4000, "listen port")
	cmd.Flags().String("http.host", "", "listen host")
	cmd.Flags().String("store.driver", "postgres", "account store: memory, redis, postgres")
	cmd.Flags().String("notify.driver", "log", "notification channel: log, smtp, amqp")
	cmd.Flags().String("log.level", "info", "log level: debug, info, warn, error")
	cmd.Flags().String("log.format", "json", "log format: json, console")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "start logger").Wrap(err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("serve failed", zap.Error(err))
		return err
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := openNotifier(cfg.Notify, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	auditSink, closeAudit := openAuditSink(cfg.Audit, cfg.Log)
	defer closeAudit()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := authx.New().
		WithConfig(cfg.EngineConfig()).
		WithStore(store).
		WithNotifier(notifier).
		WithAuditSink(auditSink).
		WithLogger(log).
		WithMetricsRegisterer(registry).
		Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").With("operation", "build engine").Wrap(err)
	}
	// Runs before closeNotifier so queued notifications drain first.
	defer engine.Close()

	routerCfg := api.Config{
		Cookie: api.CookieConfig{
			Name:       cfg.Cookie.Name,
			Domain:     cfg.Cookie.Domain,
			MaxAge:     engine.TokenTTL(),
			Production: cfg.Production(),
		},
		Development: cfg.Development(),
	}
	if cfg.HTTP.Metrics {
		routerCfg.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	router := api.NewRouter(engine, routerCfg, log)

	addr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", addr).Wrap(err)
	}

	srv := server.New(addr, router, server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	log.Info("authx starting",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.String("notify", cfg.Notify.Driver),
		zap.String("version", version),
	)
	return server.Run(ctx, srv, ln, cfg.HTTP.ShutdownTimeout, log)
}
