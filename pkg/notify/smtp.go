package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jordan-wright/email"

	"github.com/cosreg/regwatch/internal/utils"
)

// SMTPConfig holds the mail settings read from the environment.
type SMTPConfig struct {
	Host    string
	Port    int
	UseTLS  bool
	User    string
	Pass    string
	To      []string
	Timeout time.Duration
}

// SMTPConfigFromEnv reads SMTP_* variables, loading a .env file first if
// one exists.
func SMTPConfigFromEnv() SMTPConfig {
	// A missing .env file is fine; variables may be set directly.
	_ = godotenv.Load()

	port, _ := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	var to []string
	for _, addr := range strings.Split(getEnv("SMTP_TO", ""), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return SMTPConfig{
		Host:    getEnv("SMTP_HOST", "smtp.gmail.com"),
		Port:    port,
		UseTLS:  getEnv("SMTP_USE_TLS", "1") == "1",
		User:    getEnv("SMTP_USER", ""),
		Pass:    getEnv("SMTP_PASS", ""),
		To:      to,
		Timeout: 25 * time.Second,
	}
}

// Complete reports whether every setting needed to send is present.
func (c SMTPConfig) Complete() bool {
	return c.Host != "" && c.Port > 0 && c.User != "" && c.Pass != "" && len(c.To) > 0
}

// Mode names the transport security: "starttls" on 587 with TLS enabled,
// "tls" on 465, "plain" otherwise.
func (c SMTPConfig) Mode() string {
	switch {
	case c.UseTLS && c.Port == 587:
		return "starttls"
	case c.Port == 465:
		return "tls"
	}
	return "plain"
}

// SMTP sends messages with attachments through a mail server.
type SMTP struct {
	cfg SMTPConfig
	log utils.Logger
}

func NewSMTP(cfg SMTPConfig, log utils.Logger) *SMTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &SMTP{cfg: cfg, log: utils.OrNop(log)}
}

// build assembles the mail. Attachments that cannot be read are logged
// and left out.
func (s *SMTP) build(msg Message) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.User
	e.To = s.cfg.To
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	for _, path := range msg.Attachments {
		if _, err := e.AttachFile(path); err != nil {
			s.log.Warnf("Could not attach %s: %v", path, err)
		}
	}
	return e
}

// auth is nil in plain mode: credentials are never sent in the clear, so
// plain mode only works with relays that accept unauthenticated mail.
func (s *SMTP) auth() smtp.Auth {
	if s.cfg.Mode() == "plain" {
		return nil
	}
	return smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
}

func (s *SMTP) Notify(ctx context.Context, msg Message) error {
	e := s.build(msg)
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := s.auth()
	if auth == nil {
		s.log.Warnf("SMTP %s is unencrypted, sending without authentication", addr)
	}
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}

	// email has no context support; bound the send with a timer instead.
	done := make(chan error, 1)
	go func() {
		switch s.cfg.Mode() {
		case "starttls":
			done <- e.SendWithStartTLS(addr, auth, tlsCfg)
		case "tls":
			done <- e.SendWithTLS(addr, auth, tlsCfg)
		default:
			done <- e.Send(addr, auth)
		}
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp %s via %s: %w", addr, s.cfg.Mode(), err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("smtp %s: timed out after %s", addr, s.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
