package email

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Config holds the SMTP relay settings. Username empty means no auth.
type Config struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// Service sends order status mails over SMTP.
type Service struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

// SendOrderUpdate mails text to the buyer of orderID. It satisfies
// notification.Mailer.
func (s *Service) SendOrderUpdate(to, orderID, subject, text string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid mail header for order %s", orderID)
	}
	msg := s.compose(to, fmt.Sprintf("%s (order %s)", subject, shortID(orderID)), BuildOrderUpdateBody(orderID, text))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(net.JoinHostPort(s.cfg.Host, s.cfg.Port), auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send order %s mail: %w", orderID, err)
	}
	return nil
}

func (s *Service) compose(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}
