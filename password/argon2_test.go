package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// testConfig is the smallest accepted cost, which keeps the suite fast.
func testConfig() Config {
	return Config{
		Memory:      minMemoryKiB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}

func TestHashAndVerify(t *testing.T) {
	h := mustHasher(t, testConfig())

	encoded, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	other, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if other == encoded {
		t.Fatal("expected distinct salts to yield distinct digests")
	}

	cases := []struct {
		plaintext string
		want      bool
	}{
		{"P@ssw0rd-Ascii", true},
		{"p@ssw0rd-ascii", false},
		{"P@ssw0rd-Ascii ", false},
		{"short", false},
	}
	for _, tc := range cases {
		ok, err := h.Verify(tc.plaintext, encoded)
		if err != nil {
			t.Fatalf("Verify(%q) error: %v", tc.plaintext, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q) = %v, want %v", tc.plaintext, ok, tc.want)
		}
	}
}

func TestHashEmptyPassword(t *testing.T) {
	h := mustHasher(t, testConfig())
	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestVerifyUndecodableDigests(t *testing.T) {
	h := mustHasher(t, testConfig())
	valid, err := h.Hash("digest-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := []struct {
		name    string
		encoded string
		want    error
	}{
		{"not phc", "not-a-phc-hash", ErrMalformedDigest},
		{"other algorithm", strings.Replace(valid, "$argon2id$", "$argon2i$", 1), ErrUnsupportedDigest},
		{"other version", strings.Replace(valid, "$v=19$", "$v=18$", 1), ErrUnsupportedDigest},
		{"params reordered", strings.Replace(valid, "m=8192,t=1,p=1", "t=1,m=8192,p=1", 1), ErrMalformedDigest},
		{"memory below floor", strings.Replace(valid, "m=8192", "m=1024", 1), ErrMalformedDigest},
		{"bad salt", strings.Replace(valid, "$v=19$m=8192,t=1,p=1$", "$v=19$m=8192,t=1,p=1$!!", 1), ErrMalformedDigest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := h.Verify("digest-test", tc.encoded)
			if ok {
				t.Fatal("expected verification to fail")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	current := mustHasher(t, Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})

	cases := []struct {
		name string
		from Config
		want bool
	}{
		{"same parameters", Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32}, false},
		{"stronger parameters", Config{Memory: 32 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}, false},
		{"less memory", Config{Memory: 8 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32}, true},
		{"fewer passes", Config{Memory: 16 * 1024, Time: 1, Parallelism: 2, SaltLength: 16, KeyLength: 32}, true},
		{"other key length", Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 16}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := mustHasher(t, tc.from).Hash("upgrade-test")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			got, err := current.NeedsUpgrade(encoded)
			if err != nil {
				t.Fatalf("NeedsUpgrade error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := current.NeedsUpgrade("garbage"); !errors.Is(err, ErrMalformedDigest) {
		t.Fatalf("expected ErrMalformedDigest, got %v", err)
	}
}

func TestLegacyBcryptDigests(t *testing.T) {
	h := mustHasher(t, testConfig())

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword error: %v", err)
	}

	if ok, err := h.Verify("legacy-password", string(legacy)); err != nil || !ok {
		t.Fatalf("expected bcrypt digest to verify: ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("other-password", string(legacy)); err != nil || ok {
		t.Fatalf("expected bcrypt mismatch: ok=%v err=%v", ok, err)
	}
	if needs, err := h.NeedsUpgrade(string(legacy)); err != nil || !needs {
		t.Fatalf("expected bcrypt digest to need upgrade: needs=%v err=%v", needs, err)
	}

	ok, err := h.Verify("anything", "$2a$10$short")
	if ok || err == nil {
		t.Fatalf("expected truncated bcrypt digest to fail with an error: ok=%v err=%v", ok, err)
	}
}
