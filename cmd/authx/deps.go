package main

import (
	"context"
	"errors"
	"io"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/internal/audit"
	"github.com/MrEthical07/authx/internal/config"
	"github.com/MrEthical07/authx/internal/stores"
	"github.com/MrEthical07/authx/notify"
	"github.com/natefinch/lumberjack"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// openStore builds the account store selected by cfg. The returned func releases it.
func openStore(ctx context.Context, cfg config.Store, log *zap.Logger) (authx.AccountStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using the in-memory account store, accounts are lost on restart")
		return stores.NewMemoryAccountStore(), func() {}, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, oops.Code("CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
		}
		return stores.NewRedisAccountStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := stores.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "connect to postgres").Wrap(err)
		}
		if cfg.AutoMigrate {
			if err := stores.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
			}
			log.Info("database migrations applied")
		}
		return stores.NewPostgresAccountStore(pool), pool.Close, nil
	}
	return nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.Driver)
}

// openNotifier builds the notification channel selected by cfg.
func openNotifier(cfg config.Notify, log *zap.Logger) (authx.Notifier, func(), error) {
	switch cfg.Driver {
	case "log":
		return notify.NewLogNotifier(log), func() {}, nil

	case "smtp":
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		})
		if err != nil {
			return nil, nil, oops.Code("CONFIG_INVALID").With("operation", "configure smtp").Wrap(err)
		}
		return n, func() {}, nil

	case "amqp":
		n, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return nil, nil, oops.Code("NOTIFIER_CONNECT_FAILED").With("operation", "connect to amqp").Wrap(err)
		}
		return n, func() {
			if err := n.Close(); err != nil {
				log.Warn("amqp close failed", zap.Error(err))
			}
		}, nil
	}
	return nil, nil, errors.New("unknown notify driver " + cfg.Driver)
}

// openAuditSink returns the sink for audit events, or nil for the engine default (the
// process log). A configured file is rotated like the log file.
func openAuditSink(cfg config.Audit, logCfg config.Log) (audit.Sink, func()) {
	if !cfg.Enabled || cfg.File == "" {
		return nil, func() {}
	}
	var w io.WriteCloser = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAgeDays,
		Compress:   true,
	}
	return audit.NewJSONLinesSink(w), func() { _ = w.Close() }
}
