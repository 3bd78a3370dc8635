package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	usernameMinLen = 2
	usernameMaxLen = 15
	passwordMinLen = 4
	passwordMaxLen = 15
	tokenBytes     = 32
)

func validateUsername(value string) *FieldError {
	n := utf8.RuneCountInString(value)
	switch {
	case value == "":
		return &FieldError{Field: "username", Message: "username is required"}
	case n < usernameMinLen:
		return &FieldError{Field: "username", Message: "username can't be less than 2 characters"}
	case n > usernameMaxLen:
		return &FieldError{Field: "username", Message: "username can't be more than 15 characters"}
	}
	return nil
}

func validateEmail(value string) *FieldError {
	if value == "" {
		return &FieldError{Field: "email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
		return &FieldError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

func validatePassword(field, value string) *FieldError {
	n := utf8.RuneCountInString(value)
	switch {
	case value == "":
		return &FieldError{Field: field, Message: "password is required"}
	case n < passwordMinLen:
		return &FieldError{Field: field, Message: "password can't be less than 4 characters"}
	case n > passwordMaxLen:
		return &FieldError{Field: field, Message: "password can't be more than 15 characters"}
	}
	return nil
}

// collect drops nil entries so callers can validate several fields in one pass.
func collect(errs ...*FieldError) []FieldError {
	var out []FieldError
	for _, e := range errs {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// newToken returns a random hex token for emailed links.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashToken is the stored form of an emailed token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
