package authx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels used by Metrics.
const (
	opRegister           = "register"
	opLogin              = "login"
	opLogoutAll          = "logout_all"
	opResolveSession     = "resolve_session"
	opVerifyEmail        = "verify_email"
	opResendVerification = "resend_verification"
	opForgotPassword     = "forgot_password"
	opResetPassword      = "reset_password"
)

// Metrics holds the Prometheus collectors of an Engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	auditDropped  prometheus.Counter
	hashDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg yields
// unregistered collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authx_operations_total",
				Help: "Auth operations by operation and outcome (ok or error kind).",
			},
			[]string{"operation", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authx_notifications_total",
				Help: "Notification deliveries by kind and outcome (sent, failed, dropped).",
			},
			[]string{"kind", "outcome"},
		),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authx_audit_dropped_total",
			Help: "Audit events dropped due to dispatcher backpressure.",
		}),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authx_password_hash_seconds",
				Help:    "Latency of password hash and verify calls.",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.notifications, m.auditDropped, m.hashDuration)
	}
	return m
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeNotification(kind NotificationKind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) observeAuditDrop() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) observeHash(op string, started time.Time) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
