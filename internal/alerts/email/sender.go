// Package email delivers alerts over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Config holds SMTP sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	Domain       string // appended to bare recipient names, e.g. "ops.example.com"
}

// Sender delivers alert emails via SMTP with STARTTLS.
type Sender struct {
	config Config
	auth   smtp.Auth
}

// NewSender creates an email sender. Returns an error when enabled but
// required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Sender{config: config, auth: auth}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeEmail
}

// Deliver sends the alert to every recipient in one envelope.
func (s *Sender) Deliver(ctx context.Context, alert *domain.Alert) error {
	if !s.config.Enabled {
		slog.Warn("email sender disabled, skipping delivery", "alert_id", alert.ID)
		return nil
	}
	if len(alert.Recipients) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(alert.Recipients))
	for _, r := range alert.Recipients {
		addrs = append(addrs, s.address(r))
	}

	subject := fmt.Sprintf("[%s] incident %s", strings.ToUpper(alert.Severity.String()), alert.IncidentID)
	return s.send(ctx, subject, Body(alert), addrs)
}

func (s *Sender) address(recipient string) string {
	if strings.Contains(recipient, "@") || s.config.Domain == "" {
		return recipient
	}
	return recipient + "@" + s.config.Domain
}

// Body renders the plain-text alert message.
func Body(alert *domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident %s requires attention.\n\n", alert.IncidentID)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Alert:    %s\n", alert.ID)
	fmt.Fprintf(&b, "Raised:   %s\n", alert.CreatedAt.Format(time.RFC3339))
	if alert.AckRequired {
		fmt.Fprintf(&b, "\nAcknowledgment required within %s.\n", alert.EscalateAfter)
	}
	return b.String()
}

func (s *Sender) send(ctx context.Context, subject, body string, recipients []string) error {
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	msg := s.buildMessage(subject, body)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: s.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.config.FromAddress); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	var accepted int
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			slog.Warn("smtp recipient rejected", "recipient", rcpt, "error", err)
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.New("all recipients rejected")
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}

func (s *Sender) buildMessage(subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.FromAddress))
	msg.WriteString("To: undisclosed-recipients:;\r\n")
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
