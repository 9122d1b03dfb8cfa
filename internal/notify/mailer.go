// ABOUTME: Mail delivery interface and the log-only development implementation
// ABOUTME: Production deployments substitute an SMTP-backed Mailer

package notify

import (
	"context"
	"log/slog"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that logs instead of delivering.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// Send logs the email. The body lands at Debug so development setups can
// read one-time codes out of the log.
func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.Info("email not sent (log mailer)", "to", to, "subject", subject)
	m.logger.Debug("email body", "to", to, "body", htmlBody)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
