package authx

import "errors"

// Kind classifies an error for the transport boundary.
type Kind uint8

const (
	// KindInternal covers unexpected store, hashing, signing, or notifier failures.
	KindInternal Kind = iota
	// KindValidation is missing or malformed input.
	KindValidation
	// KindConflict is a uniqueness violation.
	KindConflict
	// KindForbidden is an unverified account attempting to log in.
	KindForbidden
	// KindUnauthorized is a bad credential or a missing, invalid, expired, or revoked session token.
	KindUnauthorized
	// KindNotFound is a missing account or code.
	KindNotFound
	// KindExpired is a matched but time-expired code.
	KindExpired
	// KindInvalid is an unusable verification code.
	KindInvalid
)

var kindNames = [...]string{
	KindInternal:     "internal",
	KindValidation:   "validation",
	KindConflict:     "conflict",
	KindForbidden:    "forbidden",
	KindUnauthorized: "unauthorized",
	KindNotFound:     "not_found",
	KindExpired:      "expired",
	KindInvalid:      "invalid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a classified error with a client-safe message.
//
// Public sentinels below are *Error values. Compare with errors.Is; use KindOf and
// MessageOf to classify arbitrary errors at the transport boundary.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	// ErrMissingFields is returned by Register and Login when a required field is empty.
	ErrMissingFields = newError(KindValidation, "Please provide all fields")
	// ErrPasswordPolicy is returned when a password is shorter than Password.MinLength.
	ErrPasswordPolicy = newError(KindValidation, "Password does not meet the length requirement")
	// ErrCodeMissing is returned by VerifyEmail without a code.
	ErrCodeMissing = newError(KindValidation, "Token not provided")
	// ErrEmailMissing is returned by ForgotPassword and ResendVerification without an email.
	ErrEmailMissing = newError(KindValidation, "Email not provided")
	// ErrCredentialsMissing is returned by ResetPassword without a code or password.
	ErrCredentialsMissing = newError(KindValidation, "Credentials not provided")

	// ErrAccountExists is returned by Register when the email is already registered.
	ErrAccountExists = newError(KindConflict, "User already exists")
	// ErrUsernameTaken is returned when the store rejects a duplicate username.
	ErrUsernameTaken = newError(KindConflict, "Username is already taken")
	// ErrEmailTaken is returned when the store rejects a duplicate email at insert time.
	ErrEmailTaken = newError(KindConflict, "Email is already taken")
	// ErrAlreadyVerified is returned by ResendVerification for a verified account.
	ErrAlreadyVerified = newError(KindConflict, "Email already verified")

	// ErrAccountUnverified is returned by Login before the email is verified.
	ErrAccountUnverified = newError(KindForbidden, "Email not verified")

	// ErrInvalidPassword is returned by Login on a password mismatch.
	ErrInvalidPassword = newError(KindUnauthorized, "Invalid password")
	// ErrNoToken is returned by ResolveSession when no token was presented.
	ErrNoToken = newError(KindUnauthorized, "Not Authorized - No token provided")
	// ErrTokenInvalid is returned for malformed, tampered, or otherwise unusable tokens.
	ErrTokenInvalid = newError(KindUnauthorized, "Invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = newError(KindUnauthorized, "Token expired")
	// ErrTokenRevoked is returned for tokens minted before the account's current token epoch.
	ErrTokenRevoked = newError(KindUnauthorized, "Token revoked")

	// ErrAccountNotFound is returned when an account lookup by id or login email fails.
	ErrAccountNotFound = newError(KindNotFound, "User not found")
	// ErrEmailNotFound is returned by ForgotPassword and ResendVerification for unknown emails.
	ErrEmailNotFound = newError(KindNotFound, "User not found with this email")
	// ErrResetCodeNotFound is returned by ResetPassword when no account holds the code.
	ErrResetCodeNotFound = newError(KindNotFound, "User not found")

	// ErrResetCodeExpired is returned by ResetPassword for a matched but expired code.
	ErrResetCodeExpired = newError(KindExpired, "Reset token has expired")

	// ErrVerificationInvalid is returned by VerifyEmail for wrong, expired, and used codes alike.
	ErrVerificationInvalid = newError(KindInvalid, "Invalid token")

	// ErrInternal is the client-facing replacement for unclassified failures.
	ErrInternal = newError(KindInternal, "Internal server error")
	// ErrEngineNotReady is returned when a nil or partially built Engine is used.
	ErrEngineNotReady = newError(KindInternal, "engine not initialized")
)

// Store contract errors. AccountStore implementations return these (optionally wrapped)
// and the Engine maps them onto the public sentinels above.
var (
	// ErrStoreNotFound reports that no record matched the lookup.
	ErrStoreNotFound = errors.New("authx store: not found")
	// ErrStoreCodeExpired reports that a reset code matched but its expiry has passed.
	ErrStoreCodeExpired = errors.New("authx store: code expired")
	// ErrStoreCodeCollision reports that a generated code is already held by another live record.
	ErrStoreCodeCollision = errors.New("authx store: code collision")
	// ErrStoreDuplicateEmail reports an email uniqueness violation.
	ErrStoreDuplicateEmail = errors.New("authx store: duplicate email")
	// ErrStoreDuplicateUsername reports a username uniqueness violation.
	ErrStoreDuplicateUsername = errors.New("authx store: duplicate username")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns a client-safe message for err. Unclassified errors yield the
// generic internal message.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}
