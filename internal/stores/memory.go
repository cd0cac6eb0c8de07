package stores

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/authx"
)

// MemoryAccountStore is a process-local AccountStore. All methods run under a single
// mutex; it does not persist across restarts.
type MemoryAccountStore struct {
	mu         sync.Mutex
	byID       map[string]*authx.Account
	byEmail    map[string]string
	byUsername map[string]string
	byVCode    map[string]string
	byRCode    map[string]string
}

// NewMemoryAccountStore returns an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:       make(map[string]*authx.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		byVCode:    make(map[string]string),
		byRCode:    make(map[string]string),
	}
}

var _ authx.AccountStore = (*MemoryAccountStore)(nil)

func (s *MemoryAccountStore) Create(_ context.Context, account *authx.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return authx.ErrStoreDuplicateEmail
	}
	if _, ok := s.byUsername[account.Username]; ok {
		return authx.ErrStoreDuplicateUsername
	}
	if account.VerificationCode != "" {
		if _, ok := s.byVCode[account.VerificationCode]; ok {
			return authx.ErrStoreCodeCollision
		}
	}

	stored := *account
	s.byID[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	s.byUsername[stored.Username] = stored.ID
	if stored.VerificationCode != "" {
		s.byVCode[stored.VerificationCode] = stored.ID
	}
	return nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (*authx.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOf(id)
}

func (s *MemoryAccountStore) GetByEmail(_ context.Context, email string) (*authx.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, authx.ErrStoreNotFound
	}
	return s.copyOf(id)
}

func (s *MemoryAccountStore) GetByResetCode(_ context.Context, code string) (*authx.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRCode[code]
	if !ok {
		return nil, authx.ErrStoreNotFound
	}
	return s.copyOf(id)
}

func (s *MemoryAccountStore) ConsumeVerificationCode(_ context.Context, code string, now time.Time) (*authx.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVCode[code]
	if !ok {
		return nil, authx.ErrStoreNotFound
	}
	account := s.byID[id]
	if !account.VerificationCodeExpiresAt.After(now) {
		return nil, authx.ErrStoreNotFound
	}

	delete(s.byVCode, code)
	account.IsVerified = true
	account.VerificationCode = ""
	account.VerificationCodeExpiresAt = time.Time{}
	account.UpdatedAt = now
	return s.copyOf(id)
}

func (s *MemoryAccountStore) SetVerificationCode(_ context.Context, id, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authx.ErrStoreNotFound
	}
	if holder, ok := s.byVCode[code]; ok && holder != id {
		return authx.ErrStoreCodeCollision
	}

	if account.VerificationCode != "" {
		delete(s.byVCode, account.VerificationCode)
	}
	s.byVCode[code] = id
	account.VerificationCode = code
	account.VerificationCodeExpiresAt = expiresAt
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) SetResetCode(_ context.Context, id, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authx.ErrStoreNotFound
	}
	if holder, ok := s.byRCode[code]; ok && holder != id {
		return authx.ErrStoreCodeCollision
	}

	if account.ResetCode != "" {
		delete(s.byRCode, account.ResetCode)
	}
	s.byRCode[code] = id
	account.ResetCode = code
	account.ResetCodeExpiresAt = expiresAt
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) ConsumeResetCode(_ context.Context, code, passwordHash string, now time.Time) (*authx.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRCode[code]
	if !ok {
		return nil, authx.ErrStoreNotFound
	}
	account := s.byID[id]
	if now.After(account.ResetCodeExpiresAt) {
		return nil, authx.ErrStoreCodeExpired
	}

	delete(s.byRCode, code)
	account.PasswordHash = passwordHash
	account.ResetCode = ""
	account.ResetCodeExpiresAt = time.Time{}
	account.TokenEpoch++
	account.UpdatedAt = now
	return s.copyOf(id)
}

func (s *MemoryAccountStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authx.ErrStoreNotFound
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) BumpTokenEpoch(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return 0, authx.ErrStoreNotFound
	}
	account.TokenEpoch++
	account.UpdatedAt = time.Now().UTC()
	return account.TokenEpoch, nil
}

// copyOf must be called with mu held.
func (s *MemoryAccountStore) copyOf(id string) (*authx.Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, authx.ErrStoreNotFound
	}
	out := *account
	return &out, nil
}
