// backend/src/services/email_service.go
package services

import (
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/username/bondfolio/backend/src/config"
	"github.com/username/bondfolio/backend/src/logger"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpEmailService struct {
	cfg  *config.AppConfig
	send sendFunc
}

// logEmailService only logs the links; used in development when no SMTP server is configured.
type logEmailService struct {
	cfg *config.AppConfig
}

// NewEmailService selects the provider from EMAIL_SERVICE_PROVIDER.
func NewEmailService(cfg *config.AppConfig) EmailService {
	if strings.EqualFold(cfg.EmailServiceProvider, "smtp") && cfg.SMTPServer != "" {
		return &smtpEmailService{cfg: cfg, send: smtp.SendMail}
	}
	logger.L.Warn("SMTP not configured, e-mails will only be logged", "provider", cfg.EmailServiceProvider)
	return &logEmailService{cfg: cfg}
}

func verificationLink(cfg *config.AppConfig, token string) string {
	return fmt.Sprintf("%s?token=%s", cfg.VerificationEmailBaseURL, url.QueryEscape(token))
}

func passwordResetLink(cfg *config.AppConfig, token string) string {
	return fmt.Sprintf("%s?token=%s", cfg.PasswordResetBaseURL, url.QueryEscape(token))
}

func buildMessage(cfg *config.AppConfig, to, subject, body string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s <%s>\r\n", cfg.SenderName, cfg.SenderEmail)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

func (s *smtpEmailService) deliver(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPServer, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPServer)
	}
	if err := s.send(addr, auth, s.cfg.SenderEmail, []string{to}, buildMessage(s.cfg, to, subject, body)); err != nil {
		return fmt.Errorf("failed to send e-mail to %s: %w", to, err)
	}
	logger.L.Info("E-mail sent", "to", to, "subject", subject)
	return nil
}

func (s *smtpEmailService) SendVerificationEmail(toEmail, username, token string) error {
	body := fmt.Sprintf("Hello %s,\r\n\r\nPlease confirm your e-mail address by opening the link below:\r\n%s\r\n\r\nThe link expires in %s.\r\n",
		username, verificationLink(s.cfg, token), s.cfg.VerificationTokenExpiry)
	return s.deliver(toEmail, "Confirm your e-mail address", body)
}

func (s *smtpEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	body := fmt.Sprintf("Hello %s,\r\n\r\nA password reset was requested for your account. Open the link below to choose a new password:\r\n%s\r\n\r\nThe link expires in %s. If you did not ask for this, ignore this message.\r\n",
		username, passwordResetLink(s.cfg, token), s.cfg.PasswordResetTokenExpiry)
	return s.deliver(toEmail, "Reset your password", body)
}

func (s *logEmailService) SendVerificationEmail(toEmail, username, token string) error {
	logger.L.Info("Verification e-mail (not sent)", "to", toEmail, "username", username, "link", verificationLink(s.cfg, token))
	return nil
}

func (s *logEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	logger.L.Info("Password reset e-mail (not sent)", "to", toEmail, "username", username, "link", passwordResetLink(s.cfg, token))
	return nil
}
