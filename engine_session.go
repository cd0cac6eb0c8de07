package authx

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authx/jwt"
	"go.uber.org/zap"
)

// Login authenticates email and password and issues a fresh session token.
//
// Checks run in a fixed order: missing fields, unknown email, unverified account, and
// finally the password. An unverified account is refused before the password is
// compared. When Password.UpgradeOnLogin is set, a digest produced with older
// parameters (or bcrypt) is re-hashed after a successful comparison.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opLogin)
	defer end(&err)

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrMissingFields, nil)
		return nil, ErrMissingFields
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrAccountNotFound, nil)
			return nil, ErrAccountNotFound
		}
		return nil, e.internal("AUTH_LOGIN_FAILED", "lookup account by email", err)
	}

	if !account.IsVerified {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	ok, err := e.verifyPassword(ctx, req.Password, account.PasswordHash, account.ID)
	if err != nil {
		return nil, e.internal("AUTH_LOGIN_FAILED", "verify password", err, zap.String("account_id", account.ID))
	}
	if !ok {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidPassword, nil)
		return nil, ErrInvalidPassword
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, account, req.Password)
	}

	token, expiresAt, err := e.issueToken(account)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, nil)

	return &LoginResult{
		Account:   account.Public(),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// upgradePasswordHash is best-effort: a failure leaves the old digest in place.
func (e *Engine) upgradePasswordHash(ctx context.Context, account *Account, plaintext string) {
	needs, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}

	digest, err := e.hashPassword(ctx, plaintext)
	if err != nil {
		e.log.Warn("password rehash failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, account.ID, digest); err != nil {
		e.log.Warn("password rehash not persisted", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	account.PasswordHash = digest
	e.emitAudit(ctx, auditEventPasswordUpgraded, true, account.ID, nil, nil)
}

// Logout records the logout. Tokens are stateless, so nothing is revoked; the transport
// clears the cookie. Use LogoutAll to invalidate every outstanding token.
func (e *Engine) Logout(ctx context.Context, accountID string) {
	if e == nil {
		return
	}
	e.emitAudit(ctx, auditEventLogout, true, accountID, nil, nil)
}

// LogoutAll bumps the token epoch of the account, revoking every token issued before the
// call, including the caller's own.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (result *LogoutAllResult, err error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opLogoutAll)
	defer end(&err)

	if accountID == "" {
		return nil, ErrNoToken
	}

	epoch, err := e.store.BumpTokenEpoch(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.internal("AUTH_LOGOUT_ALL_FAILED", "bump token epoch", err, zap.String("account_id", accountID))
	}

	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, nil, nil)

	return &LogoutAllResult{TokenEpoch: epoch}, nil
}

// CheckAuth echoes the account resolved by the session guard.
func (e *Engine) CheckAuth(_ context.Context, account PublicAccount) PublicAccount {
	return account
}

// ResolveSession verifies token and loads the account it names.
//
// It returns ErrNoToken for an empty token, ErrTokenExpired or ErrTokenInvalid when the
// codec rejects it, ErrAccountNotFound when the account no longer exists, and
// ErrTokenRevoked when the token predates the account's current epoch. The codec's
// reason is kept in the error chain for logging; its message is not.
func (e *Engine) ResolveSession(ctx context.Context, token string) (account *PublicAccount, err error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opResolveSession)
	defer end(&err)

	defer func() {
		if err != nil && KindOf(err) != KindInternal {
			e.emitAudit(ctx, auditEventSessionRejected, false, "", err, nil)
		}
	}()

	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := e.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &sessionError{public: ErrTokenExpired, reason: err}
		}
		return nil, &sessionError{public: ErrTokenInvalid, reason: err}
	}

	stored, err := e.store.GetByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.internal("AUTH_SESSION_FAILED", "lookup account by id", err, zap.String("account_id", claims.UID))
	}

	if stored.TokenEpoch != claims.Epoch {
		return nil, &sessionError{
			public: ErrTokenRevoked,
			reason: fmt.Errorf("token epoch %d, account epoch %d", claims.Epoch, stored.TokenEpoch),
		}
	}

	public := stored.Public()
	return &public, nil
}

// sessionError pairs a public sentinel with the codec's diagnostic reason.
type sessionError struct {
	public *Error
	reason error
}

func (e *sessionError) Error() string {
	return e.public.Message + ": " + e.reason.Error()
}

func (e *sessionError) Unwrap() []error {
	return []error{e.public, e.reason}
}
