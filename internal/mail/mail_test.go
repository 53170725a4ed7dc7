package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeMultipart(t *testing.T) {
	raw, err := Compose("bot@example.com", Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Meeting summary",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	}, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, s, "multipart/alternative; boundary=")
	assert.Contains(t, s, "plain body")
	assert.Contains(t, s, "<p>html body</p>")
	assert.Less(t, strings.Index(s, "text/plain"), strings.Index(s, "text/html"))
}

func TestComposePlain(t *testing.T) {
	raw, err := Compose("bot@example.com", Message{To: []string{"a@example.com"}, Subject: "s", Text: "only text"}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `text/plain; charset="utf-8"`)
	assert.NotContains(t, string(raw), "multipart")
}

func TestSMTPMailerSend(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "bot@example.com"})
	require.NoError(t, err)

	var gotAddr string
	var gotTo []string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo = addr, to
		assert.NotNil(t, a)
		return nil
	}
	require.NoError(t, m.Send(context.Background(), Message{To: []string{"x@example.com"}, Subject: "hi", Text: "t"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"x@example.com"}, gotTo)

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	err = m.Send(context.Background(), Message{To: []string{"x@example.com"}})
	require.ErrorContains(t, err, "relay down")

	require.Error(t, m.Send(context.Background(), Message{}))
}

func TestNewSMTPMailerValidates(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "a@b"})
	require.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "h"})
	require.Error(t, err)
}
