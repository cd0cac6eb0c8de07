package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[authx.NotificationKind]string{
	authx.NotifyVerification: "Verify Your Email - Auth-X",
	authx.NotifyWelcome:      "Welcome to Auth-X!",
	authx.NotifyResetRequest: "Reset Your Password - Auth-X",
	authx.NotifyResetSuccess: "Password Changed Successfully - Auth-X",
}

// TLS modes accepted by SMTPConfig.TLS.
const (
	TLSStartTLS      = "starttls"
	TLSOpportunistic = "opportunistic"
	TLSImplicit      = "tls"
	TLSNone          = "none"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From may carry a display name, e.g. "Auth-X <no-reply@example.com>". Only the
	// address goes on the envelope.
	From string
	// TLS is one of the TLS* modes. Empty means TLSStartTLS.
	TLS string
	// Timeout bounds dial and the whole SMTP exchange when ctx has no earlier deadline.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPNotifier sends notifications as HTML mail.
type SMTPNotifier struct {
	cfg  SMTPConfig
	tmpl *template.Template
	send sendFunc
}

var _ authx.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier parses the embedded templates and validates cfg.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSStartTLS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from address: %w", err)
	}

	n := &SMTPNotifier{cfg: cfg}
	if _, err := n.clientOptions(); err != nil {
		return nil, err
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	n.tmpl = tmpl
	n.send = n.deliver
	return n, nil
}

// Notify renders and sends n. Rendering and address errors are permanent.
func (s *SMTPNotifier) Notify(ctx context.Context, n authx.Notification) error {
	msg, err := s.render(n)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *SMTPNotifier) render(n authx.Notification) (*mail.Msg, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown notification kind %q", authx.ErrNotificationPermanent, n.Kind)
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: sender %q: %v", authx.ErrNotificationPermanent, s.cfg.From, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %v", authx.ErrNotificationPermanent, n.To, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()

	var body bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&body, string(n.Kind)+".html", n); err != nil {
		return nil, fmt.Errorf("%w: render %s: %v", authx.ErrNotificationPermanent, n.Kind, err)
	}
	msg.SetBodyString(mail.TypeTextHTML, body.String())

	return msg, nil
}

func (s *SMTPNotifier) clientOptions() ([]mail.Option, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}

	switch s.cfg.TLS {
	case TLSStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case TLSOpportunistic:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case TLSImplicit:
		opts = append(opts, mail.WithSSL())
	case TLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("smtp tls mode %q: want %s, %s, %s or %s",
			s.cfg.TLS, TLSStartTLS, TLSOpportunistic, TLSImplicit, TLSNone)
	}

	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts, nil
}

// deliver opens one connection per message. A server rejection that is not
// temporary is permanent and skips the retry loop.
func (s *SMTPNotifier) deliver(ctx context.Context, msg *mail.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	opts, err := s.clientOptions()
	if err != nil {
		return fmt.Errorf("%w: %v", authx.ErrNotificationPermanent, err)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: smtp client: %v", authx.ErrNotificationPermanent, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return fmt.Errorf("%w: smtp send: %v", authx.ErrNotificationPermanent, err)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
