package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/logger"
)

const (
	dialTimeout     = 10 * time.Second
	defaultFromAddr = "noreply@example.com"
)

// SMTPConfig describes the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// InsecureSkipVerify disables certificate checks after STARTTLS; local relays only.
	InsecureSkipVerify bool
}

// SMTPSender delivers OTP emails over SMTP with STARTTLS and PLAIN auth when offered.
type SMTPSender struct {
	cfg    SMTPConfig
	from   string
	logger *zap.Logger
	now    func() time.Time
}

var _ port.EmailSender = (*SMTPSender)(nil)

// NewSMTPSender builds a sender. From falls back to the user, then to a no-reply address.
func NewSMTPSender(cfg SMTPConfig, log *zap.Logger) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.User)
	}
	if from == "" {
		from = defaultFromAddr
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, from: from, logger: log, now: time.Now}
}

// SendOTP renders the OTP email and hands it to the SMTP server.
func (s *SMTPSender) SendOTP(ctx context.Context, to, code, recipientName string) error {
	body, err := renderOTP(recipientName, code, int(domain.ChallengeTTL/time.Minute))
	if err != nil {
		return err
	}

	msg := buildMessage(s.from, to, otpSubject, body, s.now())
	if err := s.send(ctx, to, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", logger.MaskEmail(to), err)
	}

	s.logger.Debug("otp email sent", zap.String("email", logger.MaskEmail(to)))
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer func() {
		if err := c.Quit(); err != nil {
			s.logger.Debug("smtp quit failed", zap.Error(err))
		}
	}()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{
			ServerName:         s.cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(envelopeAddress(s.from)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	return w.Close()
}

// buildMessage renders RFC 5322 headers followed by the HTML body.
func buildMessage(from, to, subject, htmlBody string, date time.Time) []byte {
	var sb strings.Builder
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", date.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	for _, h := range headers {
		sb.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(htmlBody, "\n", "\r\n"))
	return []byte(sb.String())
}

// envelopeAddress strips a display name such as "DM Flow <bot@example.com>".
func envelopeAddress(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			return from[start+1 : end]
		}
	}
	return from
}
