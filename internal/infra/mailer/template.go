package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

const otpSubject = "Your One-Time Password for Authentication"

var otpTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #eaeaea; border-radius: 5px;">
    <h2 style="color: #333; text-align: center;">Your One-Time Password</h2>
    <p>Hello {{.Name}},</p>
    <p>Your one-time password for authentication is:</p>
    <div style="margin: 20px auto; text-align: center; padding: 10px; background-color: #f8f8f8; border-radius: 5px; font-size: 24px; letter-spacing: 2px; font-weight: bold;">
        {{.Code}}
    </div>
    <p>This code will expire in {{.ValidMinutes}} minutes.</p>
    <p>If you didn't request this code, please ignore this email or contact support if you have concerns.</p>
    <p style="margin-top: 30px; font-size: 12px; color: #888; text-align: center;">
        This is an automated message, please do not reply.
    </p>
</div>
`))

type otpView struct {
	Name         string
	Code         string
	ValidMinutes int
}

// renderOTP returns the HTML body of the one-time password email.
func renderOTP(name, code string, validMinutes int) (string, error) {
	var buf bytes.Buffer
	if err := otpTemplate.Execute(&buf, otpView{Name: name, Code: code, ValidMinutes: validMinutes}); err != nil {
		return "", fmt.Errorf("render otp email: %w", err)
	}
	return buf.String(), nil
}
