package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	messages []*gomail.Msg
	err      error
}

func (s *recordingSender) DialAndSendWithContext(_ context.Context, messages ...*gomail.Msg) error {
	s.messages = append(s.messages, messages...)
	return s.err
}

func TestSMTPMailerSend(t *testing.T) {
	sender := &recordingSender{}
	m := newSMTPMailer(sender, "shop@example.com", nil)

	require.NoError(t, m.Send(context.Background(), "nika@example.com", "Verify Your Email", "<p>hi</p>"))
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Equal(t, []string{"Verify Your Email"}, msg.GetGenHeader(gomail.HeaderSubject))
	recipients, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"nika@example.com"}, recipients)
}

func TestSMTPMailerRejectsBadRecipient(t *testing.T) {
	sender := &recordingSender{}
	m := newSMTPMailer(sender, "shop@example.com", nil)
	assert.Error(t, m.Send(context.Background(), "not an address", "x", "y"))
	assert.Empty(t, sender.messages)
}

func TestSMTPMailerWrapsDeliveryErrors(t *testing.T) {
	boom := errors.New("connection refused")
	m := newSMTPMailer(&recordingSender{err: boom}, "shop@example.com", nil)
	assert.ErrorIs(t, m.Send(context.Background(), "nika@example.com", "x", "y"), boom)
}

func TestNewSMTPMailerRequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPMailer(Config{From: "shop@example.com"}, nil)
	assert.Error(t, err)
	_, err = NewSMTPMailer(Config{Host: "smtp.example.com", Port: 587}, nil)
	assert.Error(t, err)
	m, err := NewSMTPMailer(Config{Host: "smtp.example.com", Port: 587, From: "shop@example.com", Username: "u", Password: "p"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestLogMailerLogsDomainOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))
	require.NoError(t, m.Send(context.Background(), "nika@example.com", "Recover Your Password", "<p>secret link</p>"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "example.com", fields["recipient_domain"])
	assert.NotContains(t, entries[0].Message, "secret link")
}
