package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKiB  = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// ErrEmptyPassword is returned by Hash for an empty plaintext.
var ErrEmptyPassword = errors.New("password: empty plaintext")

// Config holds the Argon2id cost parameters used for new digests. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKiB:
		return fmt.Errorf("password: memory must be >= %d KiB", minMemoryKiB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes new passwords with Argon2id and verifies both Argon2id and legacy
// bcrypt digests. It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the minimum cost floor.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a PHC-encoded Argon2id digest of plaintext with a fresh random salt. The
// plaintext is hashed as raw bytes without Unicode normalization.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	d := digest{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	d.key = derive(plaintext, d, a.config.KeyLength)
	return d.String(), nil
}

// Verify reports whether plaintext matches encoded. An undecodable digest yields false
// and an error wrapping ErrMalformedDigest or ErrUnsupportedDigest.
func (a *Argon2) Verify(plaintext, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(plaintext, encoded)
	}

	d, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}
	computed := derive(plaintext, d, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Hash. Bcrypt digests
// always qualify, as do Argon2id digests weaker than the configured parameters.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}

	d, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}
	stale := d.memory < a.config.Memory ||
		d.time < a.config.Time ||
		d.parallelism < a.config.Parallelism ||
		uint32(len(d.key)) != a.config.KeyLength
	return stale, nil
}

func derive(plaintext string, d digest, keyLength uint32) []byte {
	return argon2.IDKey([]byte(plaintext), d.salt, d.time, d.memory, d.parallelism, keyLength)
}
