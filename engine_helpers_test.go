package authx

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockAccountStore is an in-memory AccountStore with the same atomicity guarantees as the
// real stores: every method runs under one lock.
type mockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	// failNext, when set, is returned by the next call and then cleared.
	failNext error
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[string]*Account)}
}

func (s *mockAccountStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *mockAccountStore) failWith(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *mockAccountStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return ErrStoreDuplicateEmail
		}
		if existing.Username == account.Username {
			return ErrStoreDuplicateUsername
		}
		if account.VerificationCode != "" && existing.VerificationCode == account.VerificationCode {
			return ErrStoreCodeCollision
		}
	}

	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

func (s *mockAccountStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	out := *account
	return &out, nil
}

func (s *mockAccountStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	for _, account := range s.accounts {
		if account.Email == email {
			out := *account
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (s *mockAccountStore) GetByResetCode(_ context.Context, code string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	for _, account := range s.accounts {
		if account.ResetCode == code {
			out := *account
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (s *mockAccountStore) ConsumeVerificationCode(_ context.Context, code string, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	for _, account := range s.accounts {
		if account.VerificationCode == code && account.VerificationCodeExpiresAt.After(now) {
			account.IsVerified = true
			account.VerificationCode = ""
			account.VerificationCodeExpiresAt = time.Time{}
			account.UpdatedAt = now
			out := *account
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (s *mockAccountStore) SetVerificationCode(_ context.Context, id, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	account, ok := s.accounts[id]
	if !ok {
		return ErrStoreNotFound
	}
	for otherID, other := range s.accounts {
		if otherID != id && other.VerificationCode == code {
			return ErrStoreCodeCollision
		}
	}
	account.VerificationCode = code
	account.VerificationCodeExpiresAt = expiresAt
	return nil
}

func (s *mockAccountStore) SetResetCode(_ context.Context, id, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	account, ok := s.accounts[id]
	if !ok {
		return ErrStoreNotFound
	}
	for otherID, other := range s.accounts {
		if otherID != id && other.ResetCode == code {
			return ErrStoreCodeCollision
		}
	}
	account.ResetCode = code
	account.ResetCodeExpiresAt = expiresAt
	return nil
}

func (s *mockAccountStore) ConsumeResetCode(_ context.Context, code, passwordHash string, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	for _, account := range s.accounts {
		if account.ResetCode != code {
			continue
		}
		if now.After(account.ResetCodeExpiresAt) {
			return nil, ErrStoreCodeExpired
		}
		account.PasswordHash = passwordHash
		account.ResetCode = ""
		account.ResetCodeExpiresAt = time.Time{}
		account.TokenEpoch++
		account.UpdatedAt = now
		out := *account
		return &out, nil
	}
	return nil, ErrStoreNotFound
}

func (s *mockAccountStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	account, ok := s.accounts[id]
	if !ok {
		return ErrStoreNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (s *mockAccountStore) BumpTokenEpoch(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}

	account, ok := s.accounts[id]
	if !ok {
		return 0, ErrStoreNotFound
	}
	account.TokenEpoch++
	return account.TokenEpoch, nil
}

func (s *mockAccountStore) snapshot(t *testing.T, email string) Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email == email {
			return *account
		}
	}
	t.Fatalf("no account stored for %q", email)
	return Account{}
}

func (s *mockAccountStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) setErr(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *recordingNotifier) last(t *testing.T, kind NotificationKind) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s notification recorded", kind)
	return Notification{}
}

func (n *recordingNotifier) count(kind NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Kind == kind {
			c++
		}
	}
	return c
}

const testSecret = "test-signing-secret-0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Notifications.Async = false
	cfg.Notifications.MaxRetries = 0
	cfg.Reset.URLBase = "https://app.example.com/"
	return cfg
}

type testEngine struct {
	*Engine
	store    *mockAccountStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	store := newMockAccountStore()
	notifier := &recordingNotifier{}
	clock := newFakeClock()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(notifier).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, store: store, notifier: notifier, clock: clock}
}

// registerVerified registers an account and consumes its verification code.
func (te *testEngine) registerVerified(t *testing.T, username, email, pw string) PublicAccount {
	t.Helper()
	ctx := context.Background()

	if _, err := te.Register(ctx, RegisterRequest{Username: username, Email: email, Password: pw}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	code := te.notifier.last(t, NotifyVerification).Code
	res, err := te.VerifyEmail(ctx, VerifyEmailRequest{Code: code})
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return res.Account
}
