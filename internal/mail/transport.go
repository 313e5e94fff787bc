package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"
)

// Transport accepts a composed message and reports synchronous
// accept/reject. Acceptance does not guarantee delivery.
type Transport interface {
	Send(ctx context.Context, msg Outbound) error
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
	TLS      bool   `yaml:"tls" json:"tls"`
	// DryRunDomain, when set, rewrites every recipient onto this
	// domain so staging environments never mail real public bodies.
	DryRunDomain string `yaml:"dry_run_domain" json:"dry_run_domain,omitempty"`
}

// Validate checks if the SMTP configuration is valid.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("smtp port is required")
	}
	if c.From == "" {
		return fmt.Errorf("smtp from address is required")
	}
	return nil
}

// SMTPTransport sends mail through a configured SMTP server.
type SMTPTransport struct {
	config SMTPConfig
	logger zerolog.Logger
}

// NewSMTPTransport creates an SMTP transport.
func NewSMTPTransport(config SMTPConfig, logger zerolog.Logger) (*SMTPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}
	return &SMTPTransport{
		config: config,
		logger: logger.With().Str("component", "smtp_transport").Logger(),
	}, nil
}

// Send composes a MIME message and hands it to the SMTP server.
func (t *SMTPTransport) Send(ctx context.Context, msg Outbound) error {
	to := msg.To
	if t.config.DryRunDomain != "" {
		to = RewriteForDryRun(to, t.config.DryRunDomain)
	}

	recipients := make([]string, len(to))
	for i, a := range to {
		recipients[i] = a.Email
	}

	body, err := composeMIME(msg, to)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)
	var auth smtp.Auth
	if t.config.Username != "" {
		auth = smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
	}

	if t.config.TLS {
		err = t.sendTLS(addr, auth, recipients, body)
	} else {
		err = smtp.SendMail(addr, auth, t.config.From, recipients, body)
	}
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	t.logger.Info().
		Strs("to", recipients).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("message accepted by SMTP server")
	return nil
}

func (t *SMTPTransport) sendTLS(addr string, auth smtp.Auth, recipients []string, body []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: t.config.Host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(t.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

// RewriteForDryRun maps recipients onto the dry-run domain, folding
// the original address into the local part: a@b.org becomes
// a+b.org@dryrun.example.
func RewriteForDryRun(to []Address, domain string) []Address {
	rewritten := make([]Address, len(to))
	for i, a := range to {
		local := strings.ReplaceAll(a.Email, "@", "+")
		rewritten[i] = Address{Name: a.Name, Email: local + "@" + domain}
	}
	return rewritten
}

func composeMIME(msg Outbound, to []Address) ([]byte, error) {
	var buf bytes.Buffer

	tos := make([]string, len(to))
	for i, a := range to {
		tos[i] = a.String()
	}
	fmt.Fprintf(&buf, "From: %s\r\n", msg.From.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(tos, ", "))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		header := textproto.MIMEHeader{}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		if _, err := part.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
