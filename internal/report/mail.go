package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// SMTPConfig configures SMTPMailer. TLS is "starttls", "ssl" or "none".
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           string
	Timeout       time.Duration
	RatePerMinute int
}

// SMTPMailer sends messages through one SMTP relay, at most RatePerMinute
// per minute.
type SMTPMailer struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	if cfg.RatePerMinute > 0 {
		m.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mail: rate limit: %w", err)
		}
	}
	if msg.From == "" {
		msg.From = m.cfg.Username
	}
	mm, err := buildMsg(msg)
	if err != nil {
		return err
	}
	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("mail: send via %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	if strings.TrimSpace(m.cfg.Host) == "" {
		return nil, fmt.Errorf("mail: smtp host not configured")
	}
	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	switch strings.ToLower(strings.TrimSpace(m.cfg.TLS)) {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	c, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: client: %w", err)
	}
	return c, nil
}

func buildMsg(msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("mail: from %q: %w", msg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail: to: %w", err)
	}
	if len(msg.CC) > 0 {
		if err := m.Cc(msg.CC...); err != nil {
			return nil, fmt.Errorf("mail: cc: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	for _, f := range msg.Attachments {
		m.AttachFile(f)
	}
	return m, nil
}
