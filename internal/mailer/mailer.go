package mailer

import (
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send delivers a one-time code by plain-text email. The body names the
// window after which the code stops working.
func (m *Mailer) Send(to, subject, code string, ttl time.Duration) error {
	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.Username)
	msg.SetHeader("Subject", subject)

	body := fmt.Sprintf(
		"Your verification code is %s.\n\nIt expires in %d minutes. If you did not request it, just ignore this email.",
		code,
		int(ttl.Minutes()),
	)

	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}
