package authx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authx/internal/audit"
	"github.com/MrEthical07/authx/jwt"
	"github.com/MrEthical07/authx/password"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// maxCodeAttempts bounds regeneration when a fresh code collides with a live one.
const maxCodeAttempts = 3

// Engine is the authentication service. It owns the account state machine:
// registration, email verification, login, session resolution, and password reset.
//
// An Engine is built once with Builder and is safe for concurrent use. It holds no
// per-account state in memory; every state transition goes through the AccountStore.
type Engine struct {
	config    Config
	store     AccountStore
	hasher    *password.Argon2
	hashSlots *semaphore.Weighted
	tokens    *jwt.Manager
	notify    *notifyDispatcher
	audit     *audit.Dispatcher
	metrics   *Metrics
	log       *zap.Logger
	tracer    trace.Tracer

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// Close drains queued notifications and audit events and stops their workers.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notify.Close()
	e.audit.Close()
}

// TokenTTL returns the session token lifetime; the HTTP layer uses it for cookie Max-Age.
func (e *Engine) TokenTTL() time.Duration {
	if e == nil || e.tokens == nil {
		return 0
	}
	return e.tokens.TTL()
}

// NotificationsDropped returns how many notifications were discarded because the queue
// was full.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notify.Dropped()
}

// AuditDropped returns how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.tokens != nil && e.hasher != nil
}

// begin opens a span for op. The returned func records the operation outcome; call it
// with a pointer to the named error result.
func (e *Engine) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "authx."+op)
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		e.metrics.observeOperation(op, err)
		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("authx.error_kind", kind.String()))
			if kind == KindInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, "internal error")
			}
		}
		span.End()
	}
}

// internal wraps an unexpected failure with a coded oops error and logs it. The client
// only ever sees ErrInternal's message for the result.
func (e *Engine) internal(code, operation string, err error, fields ...zap.Field) error {
	wrapped := oops.In("authx").
		Code(code).
		With("operation", operation).
		Wrap(err)
	e.log.Error(operation+" failed", append(fields, zap.String("code", code), zap.Error(err))...)
	return wrapped
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if min := e.config.Password.MinLength; min > 0 && len(pw) < min {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) hashPassword(ctx context.Context, pw string) (string, error) {
	if err := e.hashSlots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.hashSlots.Release(1)

	started := time.Now()
	defer e.metrics.observeHash("hash", started)

	return e.hasher.Hash(pw)
}

// verifyPassword reports a mismatch for malformed stored digests instead of failing.
func (e *Engine) verifyPassword(ctx context.Context, pw, digest, accountID string) (bool, error) {
	if err := e.hashSlots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer e.hashSlots.Release(1)

	started := time.Now()
	defer e.metrics.observeHash("verify", started)

	ok, err := e.hasher.Verify(pw, digest)
	if err != nil {
		e.log.Warn("stored password digest is unusable",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return false, nil
	}
	return ok, nil
}

func (e *Engine) issueToken(account *Account) (string, time.Time, error) {
	token, expiresAt, err := e.tokens.Issue(account.ID, account.TokenEpoch)
	if err != nil {
		return "", time.Time{}, e.internal("AUTH_TOKEN_FAILED", "issue session token", err,
			zap.String("account_id", account.ID))
	}
	return token, expiresAt, nil
}

// armCode generates codes until set accepts one that does not collide with a live code.
func (e *Engine) armCode(set func(code string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return "", err
		}
		err = set(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrStoreCodeCollision) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (e *Engine) resetURL(code string) string {
	return strings.TrimRight(e.config.Reset.URLBase, "/") + "/resetpassword/" + code
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
