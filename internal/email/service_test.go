package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newCapturingService(cfg Config, err error) (*Service, *captured) {
	got := &captured{}
	s := NewService(cfg)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*got = captured{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return err
	}
	return s, got
}

func TestService_SendOrderUpdate(t *testing.T) {
	s, got := newCapturingService(Config{Host: "mail.local", Port: "1025", From: "shop@example.com"}, nil)

	err := s.SendOrderUpdate("buyer@example.com", "0123456789abcdef", "Payment received", "Thanks!")

	require.NoError(t, err)
	assert.Equal(t, "mail.local:1025", got.addr)
	assert.Nil(t, got.auth)
	assert.Equal(t, []string{"buyer@example.com"}, got.to)
	assert.Contains(t, got.msg, "Subject: Payment received (order 01234567)\r\n")
	assert.Contains(t, got.msg, "Content-Type: text/html; charset=UTF-8")
	assert.True(t, strings.HasSuffix(got.msg, "</html>"))
}

func TestService_SendOrderUpdate_Auth(t *testing.T) {
	s, got := newCapturingService(Config{Host: "mail.local", Port: "587", From: "shop@example.com", Username: "u", Password: "p"}, nil)

	require.NoError(t, s.SendOrderUpdate("buyer@example.com", "o-1", "Order cancelled", "Sorry."))

	assert.NotNil(t, got.auth)
}

func TestService_SendOrderUpdate_Errors(t *testing.T) {
	s, _ := newCapturingService(Config{Host: "mail.local", Port: "25"}, errors.New("relay denied"))

	err := s.SendOrderUpdate("buyer@example.com", "o-1", "Order expired", "Too late.")
	assert.ErrorContains(t, err, "relay denied")

	err = s.SendOrderUpdate("buyer@example.com\r\nBcc: x@example.com", "o-1", "Order expired", "Too late.")
	assert.Error(t, err)
}
