package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// isolate clears every variable Load reads and points DotEnv at an empty file.
func isolate(t *testing.T) Options {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := wellKnownEnv[name]; ok || strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, nil, 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return Options{DotEnv: dotenv}
}

func TestLoadRequiresSecret(t *testing.T) {
	opts := isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/authx")

	_, err := Load(opts)
	if err == nil || !strings.Contains(err.Error(), "Secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadRequiresDSNForDriver(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"postgres", "PostgresDSN"},
		{"redis", "RedisURL"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			opts := isolate(t)
			t.Setenv("JWT_SECRET", "dev-secret-123")
			t.Setenv("AUTHX_STORE__DRIVER", tt.driver)

			_, err := Load(opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadWellKnownEnv(t *testing.T) {
	opts := isolate(t)
	t.Setenv("JWT_SECRET", "dev-secret-123")
	t.Setenv("DATABASE_URL", "postgres://localhost/authx")
	t.Setenv("CLIENT_URL", "https://app.example.com")
	t.Setenv("PORT", "8080")
	t.Setenv("APP_ENV", "test")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Token.Secret != "dev-secret-123" || cfg.Store.PostgresDSN != "postgres://localhost/authx" {
		t.Fatalf("unexpected secret/dsn: %+v", cfg)
	}
	if cfg.HTTP.Port != 8080 || cfg.ClientURL != "https://app.example.com" || cfg.Env != "test" {
		t.Fatalf("unexpected port/client/env: %d %q %q", cfg.HTTP.Port, cfg.ClientURL, cfg.Env)
	}
	if cfg.Token.TTL != 7*24*time.Hour {
		t.Fatalf("expected default ttl, got %v", cfg.Token.TTL)
	}
}

func TestLoadLayerPrecedence(t *testing.T) {
	opts := isolate(t)

	yamlPath := filepath.Join(t.TempDir(), "authx.yaml")
	err := os.WriteFile(yamlPath, []byte(`
token:
  secret: from-yaml-secret
  ttl: 48h
store:
  driver: redis
  redis_url: redis://yaml:6379/0
http:
  port: 5000
log:
  level: debug
`), 0o600)
	if err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	opts.File = yamlPath

	if err := os.WriteFile(opts.DotEnv, []byte("AUTHX_HTTP__PORT=6000\nREDIS_URL=redis://dotenv:6379/0\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("AUTHX_HTTP__PORT")
		os.Unsetenv("REDIS_URL")
	})
	t.Setenv("AUTHX_LOG__LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("http.port", 4000, "")
	flags.String("log.level", "info", "")
	if err := flags.Parse([]string{"--http.port=7000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	opts.Flags = flags

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Token.Secret != "from-yaml-secret" || cfg.Token.TTL != 48*time.Hour {
		t.Fatalf("expected yaml token settings, got %+v", cfg.Token)
	}
	if cfg.Store.RedisURL != "redis://dotenv:6379/0" {
		t.Fatalf("expected .env to override yaml, got %q", cfg.Store.RedisURL)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected env to win over yaml and unset flag, got %q", cfg.Log.Level)
	}
	if cfg.HTTP.Port != 7000 {
		t.Fatalf("expected explicit flag to win, got %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	opts := isolate(t)
	opts.File = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Load(opts); err == nil {
		t.Fatal("expected missing config file to fail")
	}
}

func TestValidateNotifyDrivers(t *testing.T) {
	cfg := Defaults()
	cfg.Token.Secret = "dev-secret-123"
	cfg.Store.Driver = "memory"

	cfg.Notify.Driver = "smtp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected smtp without host to fail")
	}
	cfg.Notify.SMTP.Host = "smtp.example.com"
	cfg.Notify.SMTP.From = "no-reply@example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected smtp config to pass, got %v", err)
	}
	cfg.Notify.SMTP.From = "Auth-X <no-reply@example.com>"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected display-name sender to pass, got %v", err)
	}
	cfg.Notify.SMTP.TLS = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown smtp tls mode to fail")
	}
	cfg.Notify.SMTP.TLS = "tls"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected implicit tls to pass, got %v", err)
	}

	cfg.Notify.Driver = "amqp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected amqp without url to fail")
	}
}

func TestValidateProductionSecretLength(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "memory"
	cfg.Env = "production"
	cfg.Token.Secret = "short-secret"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected short production secret to fail")
	}
	cfg.Token.Secret = strings.Repeat("s", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected long secret to pass, got %v", err)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Token.Secret = "dev-secret-123"
	cfg.ClientURL = "https://app.example.com"
	cfg.Env = "production"

	ec := cfg.EngineConfig()
	if string(ec.Token.PrivateKey) != "dev-secret-123" || ec.Token.SigningMethod != "hs256" {
		t.Fatalf("unexpected token config: %+v", ec.Token)
	}
	if ec.Reset.URLBase != "https://app.example.com" {
		t.Fatalf("expected reset url base from client url, got %q", ec.Reset.URLBase)
	}
	if !ec.Security.ProductionMode {
		t.Fatal("expected production mode")
	}
	if ec.Verification.CodeTTL != 24*time.Hour || ec.Reset.CodeTTL != time.Hour {
		t.Fatalf("unexpected code lifetimes: %v %v", ec.Verification.CodeTTL, ec.Reset.CodeTTL)
	}
}
