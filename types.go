package authx

import (
	"context"
	"time"
)

// Account is the durable credential record of a registered user.
//
// Account is the store-facing shape; it carries the password digest and pending codes and
// must never be serialized to a client. Use Public for responses.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsVerified   bool

	VerificationCode          string
	VerificationCodeExpiresAt time.Time

	ResetCode          string
	ResetCodeExpiresAt time.Time

	// TokenEpoch is embedded in every issued session token. Bumping it revokes all
	// earlier tokens.
	TokenEpoch uint32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicAccount is the client-facing projection of an Account.
type PublicAccount struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Public returns the projection of a without the password digest or any pending code.
func (a *Account) Public() PublicAccount {
	if a == nil {
		return PublicAccount{}
	}
	return PublicAccount{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// HasPendingVerification reports whether a verification code is armed and unexpired at now.
func (a *Account) HasPendingVerification(now time.Time) bool {
	return a != nil && a.VerificationCode != "" && now.Before(a.VerificationCodeExpiresAt)
}

// HasPendingReset reports whether a reset code is armed, regardless of expiry.
func (a *Account) HasPendingReset() bool {
	return a != nil && a.ResetCode != ""
}

// AccountStore is the persistence capability the Engine depends on.
//
// Implementations must be safe for concurrent use. Create must be an atomic
// insert-if-unique on both email and username, and the Consume methods must be atomic
// find-and-update so that two concurrent submissions of the same code cannot both
// succeed. Errors are reported with the ErrStore* sentinels.
type AccountStore interface {
	// Create inserts a new account. It returns ErrStoreDuplicateEmail or
	// ErrStoreDuplicateUsername on a uniqueness violation, and ErrStoreCodeCollision when
	// the verification code is already held by another account.
	Create(ctx context.Context, account *Account) error

	// GetByID returns ErrStoreNotFound when no account has the id.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByEmail returns ErrStoreNotFound when no account has the email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByResetCode returns the account currently holding code, expired or not.
	GetByResetCode(ctx context.Context, code string) (*Account, error)

	// ConsumeVerificationCode marks the account holding an unexpired code as verified and
	// clears both verification fields in one step. Wrong, expired, and already consumed
	// codes all yield ErrStoreNotFound.
	ConsumeVerificationCode(ctx context.Context, code string, now time.Time) (*Account, error)

	// SetVerificationCode re-arms the verification code of the account with id.
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error

	// SetResetCode arms a reset code on the account with id, replacing any pending one.
	SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error

	// ConsumeResetCode replaces the password digest of the account holding code, clears
	// both reset fields and increments TokenEpoch in one step. It returns ErrStoreNotFound
	// when no account holds the code and ErrStoreCodeExpired when the code expired
	// before now.
	ConsumeResetCode(ctx context.Context, code, passwordHash string, now time.Time) (*Account, error)

	// UpdatePasswordHash replaces the digest without touching the epoch.
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// BumpTokenEpoch increments TokenEpoch and returns the new value.
	BumpTokenEpoch(ctx context.Context, id string) (uint32, error)
}

// NotificationKind identifies one of the account lifecycle messages.
type NotificationKind string

const (
	// NotifyVerification carries the email verification code.
	NotifyVerification NotificationKind = "verification"
	// NotifyWelcome is sent once the email is verified.
	NotifyWelcome NotificationKind = "welcome"
	// NotifyResetRequest carries the password reset link.
	NotifyResetRequest NotificationKind = "reset_request"
	// NotifyResetSuccess confirms a completed password reset.
	NotifyResetSuccess NotificationKind = "reset_success"
)

// Notification is a single outbound message. Code is set for NotifyVerification and
// ResetURL for NotifyResetRequest.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	AccountID string           `json:"account_id"`
	To        string           `json:"to"`
	Username  string           `json:"username"`
	Code      string           `json:"code,omitempty"`
	ResetURL  string           `json:"reset_url,omitempty"`
}

// Notifier delivers account lifecycle notifications.
//
// The Engine never fails an operation because Notify failed; it retries through the
// dispatcher and then logs the failure.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResult is returned by Engine.Register. Token is a session token issued before
// the email is verified.
type RegisterResult struct {
	Account   PublicAccount
	Token     string
	ExpiresAt time.Time
}

// LoginRequest is the input of Engine.Login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Account   PublicAccount
	Token     string
	ExpiresAt time.Time
}

// VerifyEmailRequest is the input of Engine.VerifyEmail. The HTTP field name is "token".
type VerifyEmailRequest struct {
	Code string `json:"token"`
}

// VerifyEmailResult is returned by Engine.VerifyEmail.
type VerifyEmailResult struct {
	Account PublicAccount
}

// ResendVerificationRequest is the input of Engine.ResendVerification.
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// ForgotPasswordRequest is the input of Engine.ForgotPassword.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the input of Engine.ResetPassword.
type ResetPasswordRequest struct {
	Code     string `json:"-"`
	Password string `json:"password"`
}

// LogoutAllResult is returned by Engine.LogoutAll.
type LogoutAllResult struct {
	TokenEpoch uint32
}
