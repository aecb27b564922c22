package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	FromName string
}

// SMTPDispatcher delivers messages through an SMTP relay.
type SMTPDispatcher struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address: %w", err)
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}

	d := &SMTPDispatcher{cfg: cfg, send: smtp.SendMail, now: time.Now}
	if cfg.Username != "" {
		d.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return d, nil
}

// Send blocks until the relay accepts or rejects the message. net/smtp has
// no context support, so ctx is only checked before dialing.
func (d *SMTPDispatcher) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Recipient == "" {
		return ErrNoRecipient
	}
	to, err := mail.ParseAddress(m.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	to.Name = m.DisplayName

	body := d.render(to, m)
	if err := d.send(d.cfg.Addr, d.auth, d.cfg.From, []string{to.Address}, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (d *SMTPDispatcher) render(to *mail.Address, m Message) []byte {
	from := mail.Address{Name: d.cfg.FromName, Address: d.cfg.From}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", d.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.HTMLBody, "\n", "\r\n"))
	return b.Bytes()
}
