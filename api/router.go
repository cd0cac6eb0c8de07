package api

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Service is the Engine surface used by the handlers. *authx.Engine implements it.
type Service interface {
	Register(ctx context.Context, req authx.RegisterRequest) (*authx.RegisterResult, error)
	Login(ctx context.Context, req authx.LoginRequest) (*authx.LoginResult, error)
	Logout(ctx context.Context, accountID string)
	LogoutAll(ctx context.Context, accountID string) (*authx.LogoutAllResult, error)
	CheckAuth(ctx context.Context, account authx.PublicAccount) authx.PublicAccount
	ResolveSession(ctx context.Context, token string) (*authx.PublicAccount, error)
	VerifyEmail(ctx context.Context, req authx.VerifyEmailRequest) (*authx.VerifyEmailResult, error)
	ResendVerification(ctx context.Context, req authx.ResendVerificationRequest) error
	ForgotPassword(ctx context.Context, req authx.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req authx.ResetPasswordRequest) error
}

var _ Service = (*authx.Engine)(nil)

// Config configures the router.
type Config struct {
	Cookie CookieConfig
	// Development adds internal error text to 500 responses.
	Development bool
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// Now stamps the health response. Defaults to time.Now.
	Now func() time.Time
}

type handler struct {
	svc    Service
	cookie CookieConfig
	dev    bool
	log    *zap.Logger
	now    func() time.Time
}

// NewRouter returns the service router: health at "/", metrics at "/metrics", and the
// auth endpoints under /api/v1/auth.
func NewRouter(svc Service, cfg Config, log *zap.Logger) chi.Router {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	h := &handler{
		svc:    svc,
		cookie: cfg.Cookie.withDefaults(),
		dev:    cfg.Development,
		log:    log,
		now:    cfg.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestMeta)

	r.Get("/", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Get("/logout", h.logout)
		r.Post("/verifyEmail", h.verifyEmail)
		r.Post("/resendVerification", h.resendVerification)
		r.Post("/forgetPassword", h.forgotPassword)
		r.Post("/resetPassword/{code}", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(svc, middleware.GuardOptions{
				CookieName: h.cookie.Name,
				Logger:     log,
			}))
			r.Get("/checkAuth", h.checkAuth)
			r.Post("/logoutAll", h.logoutAll)
		})
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", chimw.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
