package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/authx"
	"go.uber.org/zap"
)

// DefaultCookieName is the session cookie set by the HTTP API.
const DefaultCookieName = "token"

// SessionResolver is the part of *authx.Engine the guard depends on.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*authx.PublicAccount, error)
}

type accountContextKey struct{}

// AccountFromContext returns the account attached by Guard.
func AccountFromContext(ctx context.Context) (authx.PublicAccount, bool) {
	account, ok := ctx.Value(accountContextKey{}).(authx.PublicAccount)
	return account, ok
}

// WithAccount attaches account to ctx the way Guard does.
func WithAccount(ctx context.Context, account authx.PublicAccount) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// GuardOptions configures Guard. The zero value reads the "token" cookie and discards logs.
type GuardOptions struct {
	CookieName string
	Logger     *zap.Logger
}

// Guard rejects requests without a valid session cookie. Unauthorized failures answer
// 401, a token for a missing account 404, and anything else 500 "Authentication error".
func Guard(resolver SessionResolver, opts GuardOptions) func(http.Handler) http.Handler {
	name := opts.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				writeFailure(w, http.StatusInternalServerError, "Authentication error")
				return
			}

			var token string
			if c, err := r.Cookie(name); err == nil {
				token = c.Value
			}

			account, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				status, message := guardFailure(err)
				log.Debug("session rejected",
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Error(err),
				)
				writeFailure(w, status, message)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), *account)))
		})
	}
}

func guardFailure(err error) (int, string) {
	switch authx.KindOf(err) {
	case authx.KindUnauthorized:
		return http.StatusUnauthorized, authx.MessageOf(err)
	case authx.KindNotFound:
		return http.StatusNotFound, authx.MessageOf(err)
	default:
		return http.StatusInternalServerError, "Authentication error"
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
