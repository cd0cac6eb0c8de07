package authx

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authx/internal"
	"go.uber.org/zap"
)

// ForgotPassword arms a one-hour reset code on the account registered with the email and
// queues a notification carrying the reset link. Calling it again replaces any pending
// code.
func (e *Engine) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opForgotPassword)
	defer end(&err)

	email := normalizeEmail(req.Email)
	if email == "" {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", ErrEmailMissing, nil)
		return ErrEmailMissing
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", ErrEmailNotFound, nil)
			return ErrEmailNotFound
		}
		return e.internal("AUTH_FORGOT_PASSWORD_FAILED", "lookup account by email", err)
	}

	expiresAt := e.now().UTC().Add(e.config.Reset.CodeTTL)
	code, err := e.armCode(func(code string) error {
		return e.store.SetResetCode(ctx, account.ID, code, expiresAt)
	})
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrEmailNotFound
		}
		return e.internal("AUTH_FORGOT_PASSWORD_FAILED", "set reset code", err,
			zap.String("account_id", account.ID))
	}

	e.notify.Dispatch(ctx, Notification{
		Kind:      NotifyResetRequest,
		AccountID: account.ID,
		To:        account.Email,
		Username:  account.Username,
		ResetURL:  e.resetURL(code),
	})
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, nil)

	return nil
}

// ResetPassword replaces the password of the account holding the reset code.
//
// An unknown code returns ErrResetCodeNotFound; a known but expired one returns
// ErrResetCodeExpired. On success the reset code is cleared and the token epoch is
// bumped, so sessions issued under the old password stop resolving.
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opResetPassword)
	defer end(&err)

	code := strings.TrimSpace(req.Code)
	if code == "" || req.Password == "" {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrCredentialsMissing, nil)
		return ErrCredentialsMissing
	}
	if !internal.IsNumericCode(code) {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrResetCodeNotFound, nil)
		return ErrResetCodeNotFound
	}

	account, err := e.store.GetByResetCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrResetCodeNotFound, nil)
			return ErrResetCodeNotFound
		}
		return e.internal("AUTH_RESET_PASSWORD_FAILED", "lookup account by reset code", err)
	}
	if e.now().After(account.ResetCodeExpiresAt) {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, ErrResetCodeExpired, nil)
		return ErrResetCodeExpired
	}

	if err := e.checkPasswordPolicy(req.Password); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, err, nil)
		return err
	}

	digest, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return e.internal("AUTH_RESET_PASSWORD_FAILED", "hash password", err,
			zap.String("account_id", account.ID))
	}

	// The code may have been consumed or re-armed while hashing.
	updated, err := e.store.ConsumeResetCode(ctx, code, digest, e.now().UTC())
	switch {
	case errors.Is(err, ErrStoreNotFound):
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, ErrResetCodeNotFound, nil)
		return ErrResetCodeNotFound
	case errors.Is(err, ErrStoreCodeExpired):
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, ErrResetCodeExpired, nil)
		return ErrResetCodeExpired
	case err != nil:
		return e.internal("AUTH_RESET_PASSWORD_FAILED", "consume reset code", err,
			zap.String("account_id", account.ID))
	}

	e.notify.Dispatch(ctx, Notification{
		Kind:      NotifyResetSuccess,
		AccountID: updated.ID,
		To:        updated.Email,
		Username:  updated.Username,
	})
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, updated.ID, nil, nil)

	return nil
}
