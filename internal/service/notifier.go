package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/evently/evently/pkg/logger"
)

// Notifier defines the interface for sending user notifications
type Notifier interface {
	// SendEmail sends a plain-text email
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPConfig contains SMTP connection settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier implements Notifier over SMTP
type SMTPNotifier struct {
	config *SMTPConfig
}

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(cfg *SMTPConfig) (*SMTPNotifier, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPNotifier{config: cfg}, nil
}

// SendEmail sends a plain-text email
func (n *SMTPNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + n.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	if err := smtp.SendMail(addr, auth, n.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// LogNotifier implements Notifier by logging instead of sending. Used in
// development and when SMTP is disabled.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a new log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Get()}
}

// SendEmail logs the email instead of sending it
func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	n.log.Info("email notification (smtp disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
