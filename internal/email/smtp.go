// Package email delivers emergency alert mail over the company's SMTP server.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"callintake_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// AlertSender sends emergency alert email via a direct SMTP connection.
// A nil *AlertSender is a no-op so call flows never depend on SMTP being
// configured.
type AlertSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewAlertSender creates the SMTP alert sender, or nil when email is
// disabled.
func NewAlertSender(cfg config.SMTPConfig) *AlertSender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		return nil
	}

	return &AlertSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetAlertFromName(),
		fromEmail: cfg.GetAlertFromAddress(),
	}
}

// SendEmergencyAlert mails the on-call mailbox about a live emergency call.
func (s *AlertSender) SendEmergencyAlert(ctx context.Context, toEmail, callID, callerPhone, matchedText, reason string, serviceTypes []string) error {
	if s == nil || toEmail == "" {
		return nil
	}

	content, err := renderEmergencyAlert(emergencyAlertData{
		CallID:       callID,
		CallerPhone:  callerPhone,
		MatchedText:  matchedText,
		Reason:       reason,
		ServiceTypes: serviceTypes,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf(subjectEmergencyAlertFmt, callerPhone)
	return s.send(ctx, toEmail, subject, content)
}

func (s *AlertSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
