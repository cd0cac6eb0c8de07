package authx

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authx/internal"
	"go.uber.org/zap"
)

// VerifyEmail consumes a verification code and marks its account verified.
//
// Wrong, expired, and already used codes all return ErrVerificationInvalid so the caller
// cannot tell them apart. The consume is a single atomic store step; of two concurrent
// submissions of the same code only one succeeds. The welcome notification is queued
// after the account is committed and cannot fail the call.
func (e *Engine) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (result *VerifyEmailResult, err error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opVerifyEmail)
	defer end(&err)

	code := strings.TrimSpace(req.Code)
	if code == "" {
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", ErrCodeMissing, nil)
		return nil, ErrCodeMissing
	}
	if !internal.IsNumericCode(code) {
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", ErrVerificationInvalid, nil)
		return nil, ErrVerificationInvalid
	}

	account, err := e.store.ConsumeVerificationCode(ctx, code, e.now().UTC())
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", ErrVerificationInvalid, nil)
			return nil, ErrVerificationInvalid
		}
		return nil, e.internal("AUTH_VERIFY_FAILED", "consume verification code", err)
	}

	e.notify.Dispatch(ctx, Notification{
		Kind:      NotifyWelcome,
		AccountID: account.ID,
		To:        account.Email,
		Username:  account.Username,
	})
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, account.ID, nil, nil)

	return &VerifyEmailResult{Account: account.Public()}, nil
}

// ResendVerification arms a fresh verification code for an unverified account and sends
// it. The previous code stops working.
func (e *Engine) ResendVerification(ctx context.Context, req ResendVerificationRequest) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, end := e.begin(ctx, opResendVerification)
	defer end(&err)

	email := normalizeEmail(req.Email)
	if email == "" {
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, "", ErrEmailMissing, nil)
		return ErrEmailMissing
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, auditEventEmailVerificationRequest, false, "", ErrEmailNotFound, nil)
			return ErrEmailNotFound
		}
		return e.internal("AUTH_RESEND_VERIFICATION_FAILED", "lookup account by email", err)
	}
	if account.IsVerified {
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, account.ID, ErrAlreadyVerified, nil)
		return ErrAlreadyVerified
	}

	expiresAt := e.now().UTC().Add(e.config.Verification.CodeTTL)
	code, err := e.armCode(func(code string) error {
		return e.store.SetVerificationCode(ctx, account.ID, code, expiresAt)
	})
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrEmailNotFound
		}
		return e.internal("AUTH_RESEND_VERIFICATION_FAILED", "set verification code", err,
			zap.String("account_id", account.ID))
	}

	e.notify.Dispatch(ctx, Notification{
		Kind:      NotifyVerification,
		AccountID: account.ID,
		To:        account.Email,
		Username:  account.Username,
		Code:      code,
	})
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, account.ID, nil, nil)

	return nil
}
