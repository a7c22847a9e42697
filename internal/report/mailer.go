package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/foxzi/phishdash/internal/config"
)

// ErrNotConfigured is returned when no SMTP relay or recipients are set
var ErrNotConfigured = errors.New("report mail is not configured")

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Mailer delivers digests through an SMTP relay
type Mailer struct {
	cfg    config.ReportConfig
	logger *slog.Logger
	send   sendFunc
	now    func() time.Time
}

// NewMailer creates a mailer for the configured relay
func NewMailer(cfg config.ReportConfig, logger *slog.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send:   smtp.SendMail,
		now:    time.Now,
	}
}

// Send renders and mails a digest. The relay must offer STARTTLS.
func (m *Mailer) Send(ctx context.Context, d Digest) error {
	if !m.cfg.Enabled() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := m.buildMessage(d)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	from := envelopeAddress(m.cfg.From)
	to := make([]string, len(m.cfg.To))
	for i, addr := range m.cfg.To {
		to[i] = envelopeAddress(addr)
	}

	if err := m.send(m.cfg.SMTPAddr, auth, from, to, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("send digest via %s: %w", m.cfg.SMTPAddr, err)
	}

	m.logger.Info("digest sent",
		"workspace", d.Workspace,
		"relay", m.cfg.SMTPAddr,
		"recipients", len(to),
	)
	return nil
}

// buildMessage constructs the RFC 5322 message
func (m *Mailer) buildMessage(d Digest) ([]byte, error) {
	var body bytes.Buffer
	if err := d.Render(&body); err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", d.Subject())
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), extractDomain(m.cfg.From))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")

	// normalize line endings for the wire
	buf.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	return buf.Bytes(), nil
}

// envelopeAddress strips the display name from an address
func envelopeAddress(addr string) string {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return addr
	}
	return parsed.Address
}

// extractDomain extracts domain from email address
func extractDomain(email string) string {
	addr := envelopeAddress(email)
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
