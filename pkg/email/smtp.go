package email

import (
	"context"
	"time"

	"gopkg.in/mail.v2"
)

// SMTPClient sends email through an SMTP server.
type SMTPClient struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPClient(smtpHost string, smtpPort int, username, password, from string, timeout time.Duration) *SMTPClient {
	return &SMTPClient{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
	}
}

func (c *SMTPClient) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)

	message.SetBody("text/html", html)

	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)
	dialer.Timeout = c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < dialer.Timeout || dialer.Timeout == 0 {
			dialer.Timeout = left
		}
	}

	return dialer.DialAndSend(message)
}
