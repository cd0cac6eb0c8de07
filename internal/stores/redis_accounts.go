package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/redis/go-redis/v9"
)

// Account hash fields.
const (
	fieldID           = "id"
	fieldUsername     = "username"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldVerified     = "verified"
	fieldVCode        = "vcode"
	fieldVCodeExp     = "vcode_exp"
	fieldRCode        = "rcode"
	fieldRCodeExp     = "rcode_exp"
	fieldEpoch        = "epoch"
	fieldCreated      = "created"
	fieldUpdated      = "updated"
)

// createAccountLua inserts an account hash together with its unique indexes.
// KEYS[1] = account hash
// KEYS[2] = email index
// KEYS[3] = username index
// KEYS[4] = verification code index
// ARGV[1] = account id
// ARGV[2] = verification index TTL in ms (0 = no code)
// ARGV[3..] = hash field/value pairs
//
// Returns 1, or error string: "dup_email", "dup_username", "code_collision"
var createAccountLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='dup_email'}
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return {err='dup_username'}
end
local ttl = tonumber(ARGV[2])
if ttl > 0 and redis.call('EXISTS', KEYS[4]) == 1 then
  return {err='code_collision'}
end

redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[1])
if ttl > 0 then
  redis.call('SET', KEYS[4], ARGV[1], 'PX', ttl)
end
return 1
`)

// armCodeLua arms a verification or reset code on an account.
// KEYS[1] = account hash
// KEYS[2] = new code index
// KEYS[3] = previous code index (may equal KEYS[2])
// ARGV[1] = account id
// ARGV[2] = new code
// ARGV[3] = expiry unix ms
// ARGV[4] = index TTL ms (0 = keep until consumed or replaced)
// ARGV[5] = previous code ("" when none)
// ARGV[6] = code field
// ARGV[7] = expiry field
// ARGV[8] = now unix ms
//
// Returns 1, or error string: "not_found", "code_collision"
var armCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local holder = redis.call('GET', KEYS[2])
if holder and holder ~= ARGV[1] then
  return {err='code_collision'}
end

local current = redis.call('HGET', KEYS[1], ARGV[6])
if ARGV[5] ~= '' and current == ARGV[5] and ARGV[5] ~= ARGV[2] then
  if redis.call('GET', KEYS[3]) == ARGV[1] then
    redis.call('DEL', KEYS[3])
  end
end

redis.call('HSET', KEYS[1], ARGV[6], ARGV[2], ARGV[7], ARGV[3], 'updated', ARGV[8])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[2], ARGV[1])
end
return 1
`)

// consumeVerificationLua verifies and clears a verification code in one step.
// KEYS[1] = verification code index
// KEYS[2] = account hash
// ARGV[1] = account id read from the index
// ARGV[2] = code
// ARGV[3] = now unix ms
//
// Returns the account hash as a flat list, or error string: "not_found"
var consumeVerificationLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id or id ~= ARGV[1] then
  return {err='not_found'}
end
local f = redis.call('HMGET', KEYS[2], 'vcode', 'vcode_exp')
if not f[1] or f[1] ~= ARGV[2] then
  return {err='not_found'}
end
if tonumber(f[2]) <= tonumber(ARGV[3]) then
  return {err='not_found'}
end

redis.call('HSET', KEYS[2], 'verified', '1', 'vcode', '', 'vcode_exp', '0', 'updated', ARGV[3])
redis.call('DEL', KEYS[1])
return redis.call('HGETALL', KEYS[2])
`)

// consumeResetLua replaces the password digest, clears the reset code and bumps the
// token epoch in one step.
// KEYS[1] = reset code index
// KEYS[2] = account hash
// ARGV[1] = account id read from the index
// ARGV[2] = code
// ARGV[3] = now unix ms
// ARGV[4] = new password digest
//
// Returns the account hash as a flat list, or error string: "not_found", "expired"
var consumeResetLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id or id ~= ARGV[1] then
  return {err='not_found'}
end
local f = redis.call('HMGET', KEYS[2], 'rcode', 'rcode_exp')
if not f[1] or f[1] ~= ARGV[2] then
  return {err='not_found'}
end
if tonumber(ARGV[3]) > tonumber(f[2]) then
  return {err='expired'}
end

redis.call('HSET', KEYS[2], 'password_hash', ARGV[4], 'rcode', '', 'rcode_exp', '0', 'updated', ARGV[3])
redis.call('HINCRBY', KEYS[2], 'epoch', 1)
redis.call('DEL', KEYS[1])
return redis.call('HGETALL', KEYS[2])
`)

// updateFieldLua sets one field on an existing account hash.
// KEYS[1] = account hash
// ARGV[1] = field
// ARGV[2] = value
// ARGV[3] = now unix ms
var updateFieldLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], 'updated', ARGV[3])
return 1
`)

// bumpEpochLua increments the token epoch of an existing account.
// KEYS[1] = account hash
// ARGV[1] = now unix ms
var bumpEpochLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], 'updated', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'epoch', 1)
`)

// RedisAccountStore keeps each account in a hash and maintains string keys indexing
// email, username, and live codes. Every mutation is a Lua script, so each is atomic.
//
// The key prefix always carries a hash tag so that all keys of the store share one
// slot on Redis Cluster.
type RedisAccountStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisAccountStore returns a store using prefix for all keys. A prefix without a
// hash tag is wrapped in one, so "app" becomes "{app}".
func NewRedisAccountStore(redisClient redis.UniversalClient, prefix string) *RedisAccountStore {
	return &RedisAccountStore{
		redis:  redisClient,
		prefix: hashTagged(prefix),
		now:    time.Now,
	}
}

func hashTagged(prefix string) string {
	if prefix == "" {
		return "{authx}"
	}
	open := strings.IndexByte(prefix, '{')
	if open >= 0 {
		if end := strings.IndexByte(prefix[open+1:], '}'); end > 0 {
			return prefix
		}
	}
	return "{" + prefix + "}"
}

var _ authx.AccountStore = (*RedisAccountStore)(nil)

func (s *RedisAccountStore) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *RedisAccountStore) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *RedisAccountStore) usernameKey(name string) string { return s.prefix + ":username:" + name }
func (s *RedisAccountStore) vcodeKey(code string) string { return s.prefix + ":vcode:" + code }
func (s *RedisAccountStore) rcodeKey(code string) string { return s.prefix + ":rcode:" + code }

// Create implements authx.AccountStore.
func (s *RedisAccountStore) Create(ctx context.Context, account *authx.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id required")
	}

	var indexTTL int64
	vcodeKey := s.vcodeKey("-")
	if account.VerificationCode != "" {
		vcodeKey = s.vcodeKey(account.VerificationCode)
		indexTTL = s.indexTTL(account.VerificationCodeExpiresAt)
	}

	args := append([]interface{}{account.ID, indexTTL}, encodeAccount(account)...)
	err := createAccountLua.Run(ctx, s.redis,
		[]string{
			s.accountKey(account.ID),
			s.emailKey(account.Email),
			s.usernameKey(account.Username),
			vcodeKey,
		},
		args...,
	).Err()

	return mapScriptError(err)
}

// GetByID implements authx.AccountStore.
func (s *RedisAccountStore) GetByID(ctx context.Context, id string) (*authx.Account, error) {
	fields, err := s.redis.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, authx.ErrStoreNotFound
	}
	return decodeAccount(fields)
}

// GetByEmail implements authx.AccountStore.
func (s *RedisAccountStore) GetByEmail(ctx context.Context, email string) (*authx.Account, error) {
	id, err := s.lookup(ctx, s.emailKey(email))
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// GetByResetCode implements authx.AccountStore.
func (s *RedisAccountStore) GetByResetCode(ctx context.Context, code string) (*authx.Account, error) {
	id, err := s.lookup(ctx, s.rcodeKey(code))
	if err != nil {
		return nil, err
	}
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The index may outlive a replaced code.
	if account.ResetCode != code {
		return nil, authx.ErrStoreNotFound
	}
	return account, nil
}

// ConsumeVerificationCode implements authx.AccountStore.
func (s *RedisAccountStore) ConsumeVerificationCode(ctx context.Context, code string, now time.Time) (*authx.Account, error) {
	indexKey := s.vcodeKey(code)
	id, err := s.lookup(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	result, err := consumeVerificationLua.Run(ctx, s.redis,
		[]string{indexKey, s.accountKey(id)},
		id,
		code,
		now.UnixMilli(),
	).Result()
	if err != nil {
		return nil, mapScriptError(err)
	}
	return decodeAccountReply(result)
}

// SetVerificationCode implements authx.AccountStore.
func (s *RedisAccountStore) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.armCode(ctx, id, code, fieldVCode, fieldVCodeExp, s.vcodeKey, expiresAt, s.indexTTL(expiresAt))
}

// SetResetCode implements authx.AccountStore.
//
// The reset index carries no TTL: a late attempt must still resolve to the account so
// that it reports "expired" rather than "not found". The index is removed when the code
// is consumed or replaced.
func (s *RedisAccountStore) SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.armCode(ctx, id, code, fieldRCode, fieldRCodeExp, s.rcodeKey, expiresAt, 0)
}

func (s *RedisAccountStore) armCode(
	ctx context.Context,
	id, code string,
	codeField, expField string,
	indexKey func(string) string,
	expiresAt time.Time,
	indexTTL int64,
) error {
	previous, err := s.redis.HGet(ctx, s.accountKey(id), codeField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	previousKey := indexKey(code)
	if previous != "" {
		previousKey = indexKey(previous)
	}

	err = armCodeLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), indexKey(code), previousKey},
		id,
		code,
		expiresAt.UnixMilli(),
		indexTTL,
		previous,
		codeField,
		expField,
		s.now().UnixMilli(),
	).Err()

	return mapScriptError(err)
}

// ConsumeResetCode implements authx.AccountStore.
func (s *RedisAccountStore) ConsumeResetCode(ctx context.Context, code, passwordHash string, now time.Time) (*authx.Account, error) {
	indexKey := s.rcodeKey(code)
	id, err := s.lookup(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	result, err := consumeResetLua.Run(ctx, s.redis,
		[]string{indexKey, s.accountKey(id)},
		id,
		code,
		now.UnixMilli(),
		passwordHash,
	).Result()
	if err != nil {
		return nil, mapScriptError(err)
	}
	return decodeAccountReply(result)
}

// UpdatePasswordHash implements authx.AccountStore.
func (s *RedisAccountStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	err := updateFieldLua.Run(ctx, s.redis,
		[]string{s.accountKey(id)},
		fieldPasswordHash,
		passwordHash,
		s.now().UnixMilli(),
	).Err()
	return mapScriptError(err)
}

// BumpTokenEpoch implements authx.AccountStore.
func (s *RedisAccountStore) BumpTokenEpoch(ctx context.Context, id string) (uint32, error) {
	epoch, err := bumpEpochLua.Run(ctx, s.redis,
		[]string{s.accountKey(id)},
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, mapScriptError(err)
	}
	return uint32(epoch), nil
}

func (s *RedisAccountStore) lookup(ctx context.Context, key string) (string, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", authx.ErrStoreNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

// indexTTL is never below one millisecond; Redis rejects non-positive PX.
func (s *RedisAccountStore) indexTTL(expiresAt time.Time) int64 {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl.Milliseconds()
}

func mapScriptError(err error) error {
	if err == nil {
		return nil
	}
	switch strings.TrimPrefix(err.Error(), "ERR ") {
	case "not_found":
		return authx.ErrStoreNotFound
	case "expired":
		return authx.ErrStoreCodeExpired
	case "dup_email":
		return authx.ErrStoreDuplicateEmail
	case "dup_username":
		return authx.ErrStoreDuplicateUsername
	case "code_collision":
		return authx.ErrStoreCodeCollision
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func encodeAccount(a *authx.Account) []interface{} {
	verified := "0"
	if a.IsVerified {
		verified = "1"
	}
	return []interface{}{
		fieldID, a.ID,
		fieldUsername, a.Username,
		fieldEmail, a.Email,
		fieldPasswordHash, a.PasswordHash,
		fieldVerified, verified,
		fieldVCode, a.VerificationCode,
		fieldVCodeExp, unixMilli(a.VerificationCodeExpiresAt),
		fieldRCode, a.ResetCode,
		fieldRCodeExp, unixMilli(a.ResetCodeExpiresAt),
		fieldEpoch, strconv.FormatUint(uint64(a.TokenEpoch), 10),
		fieldCreated, unixMilli(a.CreatedAt),
		fieldUpdated, unixMilli(a.UpdatedAt),
	}
}

func decodeAccount(fields map[string]string) (*authx.Account, error) {
	epoch, err := strconv.ParseUint(fields[fieldEpoch], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad epoch: %v", ErrCorruptRecord, err)
	}

	account := &authx.Account{
		ID:               fields[fieldID],
		Username:         fields[fieldUsername],
		Email:            fields[fieldEmail],
		PasswordHash:     fields[fieldPasswordHash],
		IsVerified:       fields[fieldVerified] == "1",
		VerificationCode: fields[fieldVCode],
		ResetCode:        fields[fieldRCode],
		TokenEpoch:       uint32(epoch),
	}

	times := []struct {
		field string
		dst   *time.Time
	}{
		{fieldVCodeExp, &account.VerificationCodeExpiresAt},
		{fieldRCodeExp, &account.ResetCodeExpiresAt},
		{fieldCreated, &account.CreatedAt},
		{fieldUpdated, &account.UpdatedAt},
	}
	for _, tf := range times {
		t, err := parseUnixMilli(fields[tf.field])
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s: %v", ErrCorruptRecord, tf.field, err)
		}
		*tf.dst = t
	}

	return account, nil
}

func decodeAccountReply(reply interface{}) (*authx.Account, error) {
	flat, ok := reply.([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrUnavailable)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return decodeAccount(fields)
}

func unixMilli(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseUnixMilli(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
