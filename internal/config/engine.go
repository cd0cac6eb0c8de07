package config

import (
	"github.com/MrEthical07/authx"
)

// EngineConfig maps c onto the configuration of an authx.Engine.
func (c *Config) EngineConfig() authx.Config {
	cfg := authx.DefaultConfig()

	cfg.Token.TTL = c.Token.TTL
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte(c.Token.Secret)
	cfg.Token.Issuer = c.Token.Issuer
	cfg.Token.Audience = c.Token.Audience

	cfg.Password.MinLength = c.Password.MinLength
	cfg.Password.Memory = c.Password.MemoryKiB
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.Password.MaxConcurrent = c.Password.MaxConcurrent

	cfg.Reset.URLBase = c.ClientURL

	cfg.Notifications.Async = c.Notify.Async
	cfg.Notifications.Workers = c.Notify.Workers
	cfg.Notifications.BufferSize = c.Notify.BufferSize
	cfg.Notifications.MaxRetries = c.Notify.MaxRetries
	cfg.Notifications.RetryBase = c.Notify.RetryBase

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Security.ProductionMode = c.Production()

	return cfg
}
