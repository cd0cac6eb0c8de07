package authx

import (
	"context"
	"errors"

	"github.com/MrEthical07/authx/internal/audit"
)

const (
	auditEventAccountCreationSuccess   = "account_creation_success"
	auditEventAccountCreationDuplicate = "account_creation_duplicate"
	auditEventAccountCreationFailure   = "account_creation_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventPasswordUpgraded         = "password_hash_upgraded"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventSessionRejected          = "session_rejected"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrMissingInput    AuditErrorCode = "missing_input"
	auditErrPasswordPolicy  AuditErrorCode = "password_policy"
	auditErrDuplicate       AuditErrorCode = "duplicate"
	auditErrUnverified      AuditErrorCode = "account_unverified"
	auditErrInvalidPassword AuditErrorCode = "invalid_password"
	auditErrNoToken         AuditErrorCode = "no_token"
	auditErrTokenInvalid    AuditErrorCode = "invalid_token"
	auditErrTokenExpired    AuditErrorCode = "token_expired"
	auditErrTokenRevoked    AuditErrorCode = "token_revoked"
	auditErrNotFound        AuditErrorCode = "not_found"
	auditErrCodeExpired     AuditErrorCode = "code_expired"
	auditErrCodeInvalid     AuditErrorCode = "code_invalid"
	auditErrAlreadyVerified AuditErrorCode = "already_verified"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	client := ClientInfoFromContext(ctx)
	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrCodeMissing),
		errors.Is(err, ErrEmailMissing),
		errors.Is(err, ErrCredentialsMissing):
		return auditErrMissingInput
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrAccountUnverified):
		return auditErrUnverified
	case errors.Is(err, ErrInvalidPassword):
		return auditErrInvalidPassword
	case errors.Is(err, ErrNoToken):
		return auditErrNoToken
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrEmailNotFound),
		errors.Is(err, ErrResetCodeNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrResetCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrCodeInvalid
	default:
		return auditErrInternal
	}
}
