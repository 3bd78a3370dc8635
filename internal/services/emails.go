package services

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

const (
	subjectResetPassword = "Recover Your Password"
	subjectForgotEmail   = "Recover your email"
	subjectVerifyEmail   = "Verify Your Email"
)

func frontendLink(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + url.QueryEscape(token)
}

func resetPasswordBody(link string) string {
	return fmt.Sprintf(`<p>You requested a password reset.</p>
<p><a href="%s">Reset your password</a></p>
<p>The link expires in 15 minutes. If you did not request it, ignore this email.</p>`, html.EscapeString(link))
}

func forgotEmailBody(email string) string {
	return fmt.Sprintf(`<p>The email registered for your account is <strong>%s</strong>.</p>`, html.EscapeString(email))
}

func verifyEmailBody(link string) string {
	return fmt.Sprintf(`<p>Confirm your email address to finish setting up your account.</p>
<p><a href="%s">Verify email</a></p>
<p>The link expires in 15 minutes.</p>`, html.EscapeString(link))
}
