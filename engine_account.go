package authx

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Register creates an unverified account, arms a verification code, and issues a session
// token for it.
//
// Validation runs in order: missing fields, password policy, existing email. The
// verification notification is dispatched after the account is stored and its outcome
// never affects the result.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (result *RegisterResult, err error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opRegister)
	defer end(&err)

	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	if username == "" || email == "" || req.Password == "" {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", ErrMissingFields, nil)
		return nil, ErrMissingFields
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", err, nil)
		return nil, err
	}

	switch _, lookupErr := e.store.GetByEmail(ctx, email); {
	case lookupErr == nil:
		e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", ErrAccountExists, func() map[string]string {
			return map[string]string{"field": "email"}
		})
		return nil, ErrAccountExists
	case !errors.Is(lookupErr, ErrStoreNotFound):
		return nil, e.internal("AUTH_REGISTER_FAILED", "lookup account by email", lookupErr)
	}

	digest, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, e.internal("AUTH_REGISTER_FAILED", "hash password", err)
	}

	now := e.now().UTC()
	account := &Account{
		ID:           e.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		TokenEpoch:   1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	expiresAt := now.Add(e.config.Verification.CodeTTL)

	code, err := e.armCode(func(code string) error {
		account.VerificationCode = code
		account.VerificationCodeExpiresAt = expiresAt
		return e.store.Create(ctx, account)
	})
	switch {
	case errors.Is(err, ErrStoreDuplicateEmail):
		e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", ErrEmailTaken, func() map[string]string {
			return map[string]string{"field": "email"}
		})
		return nil, ErrEmailTaken
	case errors.Is(err, ErrStoreDuplicateUsername):
		e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", ErrUsernameTaken, func() map[string]string {
			return map[string]string{"field": "username"}
		})
		return nil, ErrUsernameTaken
	case err != nil:
		return nil, e.internal("AUTH_REGISTER_FAILED", "create account", err)
	}

	token, tokenExpiresAt, err := e.issueToken(account)
	if err != nil {
		return nil, err
	}

	e.notify.Dispatch(ctx, Notification{
		Kind:      NotifyVerification,
		AccountID: account.ID,
		To:        account.Email,
		Username:  account.Username,
		Code:      code,
	})
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, account.ID, nil, nil)
	e.log.Info("account registered", zap.String("account_id", account.ID))

	return &RegisterResult{
		Account:   account.Public(),
		Token:     token,
		ExpiresAt: tokenExpiresAt,
	}, nil
}
