package authx

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the complete, immutable configuration of an Engine.
//
// Build a Config once at startup (DefaultConfig plus overrides, or internal/config for the
// binary) and hand it to New().WithConfig. The Engine copies it; later mutation of the
// caller's value has no effect.
type Config struct {
	Token         TokenConfig
	Password      PasswordConfig
	Verification  VerificationConfig
	Reset         ResetConfig
	Notifications NotificationConfig
	Audit         AuditConfig
	Security      SecurityConfig
}

// TokenConfig configures session token minting.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HMAC secret for hs256, or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// PasswordConfig configures hashing and password policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum password length in bytes. Zero disables the check.
	MinLength int
	// UpgradeOnLogin rehashes stale or legacy digests after a successful login.
	UpgradeOnLogin bool
	// MaxConcurrent bounds simultaneous hash and verify calls.
	MaxConcurrent int64
}

// VerificationConfig configures email verification codes.
type VerificationConfig struct {
	CodeTTL time.Duration
}

// ResetConfig configures password reset codes.
type ResetConfig struct {
	CodeTTL time.Duration
	// URLBase is the client origin; reset links are URLBase + "/resetpassword/" + code.
	URLBase string
}

// NotificationConfig configures the notification dispatcher.
type NotificationConfig struct {
	// Async queues notifications for background workers. When false, Notify runs inline
	// after the state change and its failure is only logged.
	Async      bool
	Workers    int
	BufferSize int
	DropIfFull bool
	MaxRetries uint64
	RetryBase  time.Duration
	// SendTimeout bounds a single Notify attempt.
	SendTimeout time.Duration
}

// AuditConfig configures the audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// SecurityConfig holds environment-sensitive switches.
type SecurityConfig struct {
	// ProductionMode requires a strong signing key.
	ProductionMode bool
}

const (
	minHS256SecretBytes        = 32
	minHS256SecretBytesNonProd = 8
)

// DefaultConfig returns a Config with the lifetimes of the service: 7 day sessions,
// 24 hour verification codes, and 1 hour reset codes. Token.PrivateKey is left empty and
// must be provided.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        0,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
			MaxConcurrent:  8,
		},
		Verification: VerificationConfig{
			CodeTTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			CodeTTL: time.Hour,
			URLBase: "http://localhost:5173",
		},
		Notifications: NotificationConfig{
			Async:       true,
			Workers:     2,
			BufferSize:  256,
			DropIfFull:  true,
			MaxRetries:  3,
			RetryBase:   200 * time.Millisecond,
			SendTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error, if any.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		minBytes := minHS256SecretBytesNonProd
		if c.Security.ProductionMode {
			minBytes = minHS256SecretBytes
		}
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
		if len(c.Token.PrivateKey) < minBytes {
			return errors.New("hs256 PrivateKey is too short")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}

	// Password
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}
	if c.Password.MaxConcurrent <= 0 {
		return errors.New("Password MaxConcurrent must be > 0")
	}

	// Codes
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Reset.CodeTTL <= 0 {
		return errors.New("Reset CodeTTL must be > 0")
	}
	if strings.TrimSpace(c.Reset.URLBase) == "" {
		return errors.New("Reset URLBase must be set")
	}
	if u, err := url.Parse(c.Reset.URLBase); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Reset URLBase must be an absolute URL")
	}

	// Notifications
	if c.Notifications.Async {
		if c.Notifications.Workers <= 0 {
			return errors.New("Notifications Workers must be > 0")
		}
		if c.Notifications.BufferSize <= 0 {
			return errors.New("Notifications BufferSize must be > 0")
		}
	}
	if c.Notifications.MaxRetries > 0 && c.Notifications.RetryBase <= 0 {
		return errors.New("Notifications RetryBase must be > 0 when retries are enabled")
	}
	if c.Notifications.SendTimeout < 0 {
		return errors.New("Notifications SendTimeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
