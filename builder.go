package authx

import (
	"errors"
	"time"

	"github.com/MrEthical07/authx/internal"
	"github.com/MrEthical07/authx/internal/audit"
	"github.com/MrEthical07/authx/jwt"
	"github.com/MrEthical07/authx/password"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/MrEthical07/authx"

// Builder assembles an Engine. A Builder is single-use: Build may succeed once.
type Builder struct {
	config Config

	store     AccountStore
	notifier  Notifier
	auditSink audit.Sink

	logger         *zap.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the notification channel. Without one, notifications are skipped.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit sink used when Audit.Enabled is true. The default sink
// logs through the Engine logger.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithMetricsRegisterer registers the Engine collectors on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides time.Now for code expiry and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine. The Engine owns
// background workers; call Close on shutdown.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(b.registerer)

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		hasher:    hasher,
		hashSlots: semaphore.NewWeighted(cfg.Password.MaxConcurrent),
		tokens:    tokens,
		metrics:   metrics,
		log:       log.Named("authx"),
		tracer:    tp.Tracer(tracerName),
		now:       now,
		newID:     uuid.NewString,
		newCode:   internal.NewNumericCode,
	}

	if b.notifier == nil {
		engine.log.Warn("no notifier configured, account notifications are disabled")
	}
	engine.notify = newNotifyDispatcher(cfg.Notifications, b.notifier, engine.log, metrics)

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(log)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func(audit.Event) { metrics.observeAuditDrop() },
	}, sink)

	b.built = true

	return engine, nil
}
