// Package mailer sends notification emails over SMTP: request received,
// request rejected, VM ready and provisioning failed.
package mailer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
)

// Service sends templated mail. SMTP parameters come from the settings
// service so they can change at runtime.
type Service struct {
	settings *settings.Service
}

// NewService creates a mail service.
func NewService(s *settings.Service) *Service {
	return &Service{settings: s}
}

// Enabled reports whether outbound mail is turned on and configured.
func (s *Service) Enabled(ctx context.Context) bool {
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return false
	}
	enabled, _ := strconv.ParseBool(eff["SMTP_ENABLED"])
	return enabled && eff["SMTP_HOST"] != "" && eff["SMTP_FROM"] != ""
}

// Send delivers one HTML message.
func (s *Service) Send(ctx context.Context, to, subject, htmlBody string) error {
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return err
	}
	if eff["SMTP_HOST"] == "" {
		return fmt.Errorf("smtp is not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(eff["SMTP_FROM"]); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{}
	if port, err := strconv.Atoi(eff["SMTP_PORT"]); err == nil && port > 0 {
		opts = append(opts, mail.WithPort(port))
	}
	if eff["SMTP_USERNAME"] != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(eff["SMTP_USERNAME"]),
			mail.WithPassword(eff["SMTP_PASSWORD"]),
		)
	}
	if useTLS, _ := strconv.ParseBool(eff["SMTP_USE_TLS"]); useTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(eff["SMTP_HOST"], opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	logger.Info("Notification email sent",
		zap.String("to", maskRecipient(to)),
		zap.String("subject", subject),
	)
	return nil
}

func maskRecipient(to string) string {
	at := strings.IndexByte(to, '@')
	if at <= 1 {
		return "***"
	}
	return to[:1] + "***" + to[at:]
}
