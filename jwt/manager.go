package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Parse failures. Every error returned by Parse wraps exactly one of these.
var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenClaims    = errors.New("token claims invalid")
)

const defaultMaxFutureIAT = 10 * time.Minute

// Config configures a Manager.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256. For ed25519 it is the raw or PEM private
	// key and may be empty on a verify-only Manager.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// MaxFutureIAT rejects tokens issued further in the future. Zero means 10 minutes.
	MaxFutureIAT time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	UID string `json:"uid"`
	// Epoch must equal the account's token epoch for the token to be accepted.
	Epoch uint32 `json:"av"`
	jwt.RegisteredClaims
}

// Manager issues and parses session tokens. It is immutable after NewManager and safe
// for concurrent use.
type Manager struct {
	ttl          time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	now          func() time.Time

	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
}

// NewManager validates cfg, decodes its keys, and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: MaxFutureIAT must be within (0, 24h]")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		ttl:          cfg.TTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 requires a secret")
		}
		secret := append([]byte(nil), cfg.PrivateKey...)
		m.method = jwt.SigningMethodHS256
		m.signKey = secret
		m.verifyKey = secret
	case MethodEd25519:
		pub, err := decodeEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.verifyKey = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := decodeEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a token for uid carrying epoch, valid for the configured TTL. The returned
// expiry is truncated to whole seconds, as carried in the token.
func (m *Manager) Issue(uid string, epoch uint32) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, errors.New("jwt: uid required")
	}
	if m.signKey == nil {
		return "", time.Time{}, errors.New("jwt: no signing key configured")
	}

	now := m.now()
	claims := SessionClaims{
		UID:   uid,
		Epoch: epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies raw and returns its claims. Failures wrap ErrTokenMissing,
// ErrTokenMalformed, ErrTokenSignature, ErrTokenExpired, or ErrTokenClaims.
func (m *Manager) Parse(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}

	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrTokenClaims
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrTokenClaims)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.maxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenClaims)
	}
	return claims, nil
}

func classify(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		sentinel = ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		sentinel = ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrTokenExpired
	default:
		sentinel = ErrTokenClaims
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

func decodeEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: ed25519 private key has the wrong type")
	}
	return edKey, nil
}

func decodeEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt: ed25519 requires a public key")
	}
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: ed25519 public key has the wrong type")
	}
	return edKey, nil
}
