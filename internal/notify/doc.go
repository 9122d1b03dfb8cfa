// Package notify renders and delivers account emails for grimoire.
//
// # Flow
//
// The identity service hands a freshly issued one-time code to a Notifier,
// which renders the matching template and passes the result to a Mailer:
//
//	notifier := notify.NewNotifier(mailer, appName, frontendURL, otpTTL, logger)
//	err := notifier.SendVerificationCode(ctx, email, code)
//	err := notifier.SendPasswordResetCode(ctx, email, code)
//
// # Templates
//
// Templates are authored as markdown with text/template placeholders and
// converted to HTML with goldmark at send time. Two templates exist:
//
//   - verification: "Confirm your {app_name} email"
//   - password reset: "Reset your {app_name} password"
//
// Both embed the one-time code, the app name, how long the code stays
// valid, and (when configured) a link back to the frontend.
//
// # Mailers
//
// Mailer is the delivery interface. LogMailer is the development
// implementation: it writes the email to the log instead of sending it,
// with the body at Debug level so local setups can read codes out of the
// log. Production deployments substitute an SMTP-backed implementation.
package notify
