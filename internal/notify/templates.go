// ABOUTME: Markdown email templates for one-time codes, rendered to HTML
// ABOUTME: Subjects and body copy mirror the platform's account emails

package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/yuin/goldmark"
)

// emailData is the payload every template renders against.
type emailData struct {
	AppName     string
	Code        string
	FrontendURL string
	Minutes     int
}

const verificationSubject = "Confirm your %s email"

const verificationBody = `# Welcome to {{.AppName}}!

Hello,

Thank you for signing up for {{.AppName}}! To complete your registration, enter this verification code:

**{{.Code}}**

The code expires in {{.Minutes}} minutes.
{{if .FrontendURL}}
Enter it at {{.FrontendURL}}/auth/verify-email to activate your account.
{{end}}
If you didn't create a {{.AppName}} account, you can safely ignore this email.

This email was sent by {{.AppName}}.
`

const resetSubject = "Reset your %s password"

const resetBody = `# Reset Your Password

Hello,

You recently requested to reset your password for your {{.AppName}} account. Use this code to continue:

**{{.Code}}**

The code expires in {{.Minutes}} minutes.
{{if .FrontendURL}}
Enter it at {{.FrontendURL}}/auth/reset-password together with your new password.
{{end}}
**Security notice:** if you didn't request this password reset, ignore this email. Your password will remain unchanged.

This email was sent by {{.AppName}}.
`

var (
	verificationTmpl = template.Must(template.New("verification").Parse(verificationBody))
	resetTmpl        = template.Must(template.New("reset").Parse(resetBody))
)

// renderEmail executes the template and converts the markdown result to HTML.
func renderEmail(tmpl *template.Template, data emailData) (string, error) {
	var md bytes.Buffer
	if err := tmpl.Execute(&md, data); err != nil {
		return "", fmt.Errorf("executing %s template: %w", tmpl.Name(), err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		return "", fmt.Errorf("converting %s template to HTML: %w", tmpl.Name(), err)
	}

	return html.String(), nil
}
