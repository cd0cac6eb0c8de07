package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	koanf "github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of authx environment overrides.
const EnvPrefix = "AUTHX_"

// wellKnownEnv maps unprefixed variables shared with other deployments onto config keys.
var wellKnownEnv = map[string]string{
	"APP_ENV":      "env",
	"JWT_SECRET":   "token.secret",
	"CLIENT_URL":   "client_url",
	"DATABASE_URL": "store.postgres_dsn",
	"REDIS_URL":    "store.redis_url",
	"PORT":         "http.port",
}

var validate = validator.New()

// Options selects the optional layers of Load.
type Options struct {
	// File is a YAML file. Empty skips the layer; a named file that is missing is an error.
	File string
	// DotEnv is a .env file. Empty means ".env" in the working directory, which may be absent.
	DotEnv string
	// Flags are applied last. Only flags set on the command line override earlier layers.
	Flags *pflag.FlagSet
}

// Load merges every layer, unmarshals into Defaults(), and validates the result.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.File, err)
		}
	}

	if err := loadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	err := k.Load(env.Provider("", ".", func(s string) string {
		return wellKnownEnv[s]
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load well-known env: %w", err)
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(strings.ReplaceAll(key, "__", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load %s env: %w", EnvPrefix, err)
	}

	if opts.Flags != nil {
		setOnly := func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, f.Value.String()
		}
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, setOnly), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Notify.Driver {
	case "smtp":
		if c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == "" {
			return errors.New("invalid config: notify.smtp.host and notify.smtp.from are required for the smtp driver")
		}
	case "amqp":
		if c.Notify.AMQP.URL == "" {
			return errors.New("invalid config: notify.amqp.url is required for the amqp driver")
		}
	}

	if c.Production() && len(c.Token.Secret) < 32 {
		return errors.New("invalid config: token.secret must be at least 32 bytes in production")
	}
	return nil
}
