package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"deviceguard/pkg/domain"
)

// mailSender is the part of *gomail.Dialer the channel uses.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends through SMTP with gomail.
type EmailChannel struct {
	dialer mailSender
	from   string
	dryRun bool
	logger *zap.Logger
}

func NewEmailChannel(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, dryRun bool, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   fromEmail,
		dryRun: dryRun || smtpHost == "",
		logger: logger.Named("email"),
	}
}

func (s *EmailChannel) Name() domain.Channel { return domain.ChannelEmail }

func (s *EmailChannel) Address(r Recipient) (string, bool) {
	e := strings.TrimSpace(r.Email)
	return e, e != "" && strings.Contains(e, "@")
}

// Send does not honour ctx cancellation mid-dial; gomail has no context support.
func (s *EmailChannel) Send(ctx context.Context, to string, content Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dryRun {
		s.logger.Info("[email][dry-run] message accepted", zap.String("subject", content.Subject))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/plain", content.Text)
	if content.HTML != "" {
		m.AddAlternative("text/html", content.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Info("[email][send] ok", zap.String("subject", content.Subject))
	return nil
}
