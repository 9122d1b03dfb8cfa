// ABOUTME: Notifier builds account emails around one-time codes
// ABOUTME: Renders the template for each purpose and hands the result to a Mailer

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"
)

// Notifier renders account emails and sends them through a Mailer.
type Notifier struct {
	mailer      Mailer
	appName     string
	frontendURL string
	ttl         time.Duration
	logger      *slog.Logger
}

// NewNotifier creates a notifier. ttl is how long issued codes stay valid;
// it is surfaced in the email copy.
func NewNotifier(mailer Mailer, appName, frontendURL string, ttl time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		mailer:      mailer,
		appName:     appName,
		frontendURL: frontendURL,
		ttl:         ttl,
		logger:      logger.With("component", "notify"),
	}
}

// SendVerificationCode emails a signup confirmation code.
func (n *Notifier) SendVerificationCode(ctx context.Context, email, code string) error {
	subject := fmt.Sprintf(verificationSubject, n.appName)
	return n.send(ctx, verificationTmpl, email, subject, code)
}

// SendPasswordResetCode emails a password reset code.
func (n *Notifier) SendPasswordResetCode(ctx context.Context, email, code string) error {
	subject := fmt.Sprintf(resetSubject, n.appName)
	return n.send(ctx, resetTmpl, email, subject, code)
}

func (n *Notifier) send(ctx context.Context, tmpl *template.Template, email, subject, code string) error {
	body, err := renderEmail(tmpl, emailData{
		AppName:     n.appName,
		Code:        code,
		FrontendURL: n.frontendURL,
		Minutes:     int(n.ttl.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := n.mailer.Send(ctx, email, subject, body); err != nil {
		return fmt.Errorf("sending %s email: %w", tmpl.Name(), err)
	}

	n.logger.Debug("sent account email", "template", tmpl.Name(), "to", email)
	return nil
}
