package config

import (
	"time"
)

// Config is the full process configuration.
type Config struct {
	Env       string `koanf:"env"        validate:"oneof=development production test"`
	ClientURL string `koanf:"client_url" validate:"required,url"`

	HTTP     HTTP     `koanf:"http"`
	Token    Token    `koanf:"token"`
	Password Password `koanf:"password"`
	Store    Store    `koanf:"store"`
	Notify   Notify   `koanf:"notify"`
	Cookie   Cookie   `koanf:"cookie"`
	Log      Log      `koanf:"log"`
	Audit    Audit    `koanf:"audit"`
}

// HTTP holds web-server tunables.
type HTTP struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	Metrics         bool          `koanf:"metrics"`
}

// Token configures session tokens. Secret is the HS256 key.
type Token struct {
	Secret   string        `koanf:"secret"   validate:"required"`
	TTL      time.Duration `koanf:"ttl"      validate:"gt=0"`
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
}

// Password tunes Argon2id and the length policy.
type Password struct {
	MinLength     int    `koanf:"min_length"     validate:"min=0"`
	MemoryKiB     uint32 `koanf:"memory_kib"     validate:"min=8192"`
	Time          uint32 `koanf:"time"           validate:"min=1"`
	Parallelism   uint8  `koanf:"parallelism"    validate:"min=1"`
	MaxConcurrent int64  `koanf:"max_concurrent" validate:"min=1"`
}

// Store selects the account store.
type Store struct {
	Driver      string `koanf:"driver"       validate:"oneof=memory redis postgres"`
	RedisURL    string `koanf:"redis_url"    validate:"required_if=Driver redis"`
	RedisPrefix string `koanf:"redis_prefix"`
	PostgresDSN string `koanf:"postgres_dsn" validate:"required_if=Driver postgres"`
	// AutoMigrate applies pending migrations when serve starts with the postgres driver.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// Notify selects and tunes the notification channel.
type Notify struct {
	Driver     string        `koanf:"driver"      validate:"oneof=log smtp amqp"`
	Async      bool          `koanf:"async"`
	Workers    int           `koanf:"workers"     validate:"min=1"`
	BufferSize int           `koanf:"buffer_size" validate:"min=1"`
	MaxRetries uint64        `koanf:"max_retries"`
	RetryBase  time.Duration `koanf:"retry_base"  validate:"gt=0"`
	SMTP       SMTP          `koanf:"smtp"`
	AMQP       AMQP          `koanf:"amqp"`
}

// SMTP configures the SMTP notifier.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	// TLS is starttls, opportunistic, tls (implicit), or none.
	TLS      string `koanf:"tls" validate:"omitempty,oneof=starttls opportunistic tls none"`
}

// AMQP configures the queue notifier.
type AMQP struct {
	URL   string `koanf:"url"`
	Queue string `koanf:"queue"`
}

// Cookie configures the session cookie.
type Cookie struct {
	Name   string `koanf:"name"`
	Domain string `koanf:"domain"`
}

// Log configures the process logger.
type Log struct {
	Level      string `koanf:"level"       validate:"oneof=debug info warn error"`
	Format     string `koanf:"format"      validate:"oneof=json console"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// Audit toggles audit events. File, when set, receives events as JSON lines and rotates
// with the Log size limits; otherwise events go to the process log.
type Audit struct {
	Enabled bool   `koanf:"enabled"`
	File    string `koanf:"file"`
}

// Defaults returns the configuration before any layer is applied.
func Defaults() Config {
	return Config{
		Env:       "development",
		ClientURL: "http://localhost:5173",
		HTTP: HTTP{
			Port:            4000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Metrics:         true,
		},
		Token: Token{
			TTL: 7 * 24 * time.Hour,
		},
		Password: Password{
			MinLength:     8,
			MemoryKiB:     64 * 1024,
			Time:          3,
			Parallelism:   2,
			MaxConcurrent: 8,
		},
		Store: Store{
			Driver:      "postgres",
			RedisPrefix: "{authx}",
			AutoMigrate: true,
		},
		Notify: Notify{
			Driver:     "log",
			Async:      true,
			Workers:    2,
			BufferSize: 256,
			MaxRetries: 3,
			RetryBase:  200 * time.Millisecond,
			SMTP:       SMTP{Port: 587, TLS: "starttls"},
			AMQP:       AMQP{Queue: "email_jobs"},
		},
		Cookie: Cookie{
			Name: "token",
		},
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 14,
		},
	}
}

// Production reports whether the process runs with production security settings.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Development reports whether internal error details may be exposed to clients.
func (c *Config) Development() bool {
	return c.Env == "development"
}
