package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds configuration for a plain SMTP relay.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	UseTLS    bool
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

type smtpDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends emails through an SMTP server.
type SMTPSender struct {
	dialer  smtpDialer
	from    string
	timeout time.Duration
	logger  *logging.Logger
}

// NewSMTPSender creates an SMTP sender. It returns nil when no host is set.
func NewSMTPSender(cfg SMTPConfig, logger *logging.Logger) *SMTPSender {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS
	return &SMTPSender{
		dialer:  d,
		from:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Send delivers the message, giving up when ctx or the configured timeout
// expires first.
func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.dialer == nil {
		return fmt.Errorf("notify: smtp dialer not configured")
	}
	m, err := buildMIMEMessage(s.from, msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	wait := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("smtp send failed", "error", err, "to", msg.To)
			return fmt.Errorf("notify: smtp send failed: %w", err)
		}
		s.logger.Info("email sent via smtp", "to", msg.To, "subject", msg.Subject)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return fmt.Errorf("notify: smtp send: %w", context.DeadlineExceeded)
	}
}

// buildMIMEMessage renders an EmailMessage as a multipart MIME message.
func buildMIMEMessage(from string, msg EmailMessage) (*gomail.Message, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("notify: recipient is required")
	}
	if strings.TrimSpace(msg.Body) == "" && strings.TrimSpace(msg.HTML) == "" {
		return nil, fmt.Errorf("notify: email body is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Body != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Body)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Body)
	}

	for _, att := range msg.Attachments {
		content := att.Content
		m.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}),
		)
	}
	return m, nil
}

var _ EmailSender = (*SMTPSender)(nil)
