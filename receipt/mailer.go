package receipt

import (
	"fmt"

	"cinema_pos/config"

	"gopkg.in/gomail.v2"
)

type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends the rendered bill as an HTML email.
type Mailer struct {
	sender Sender
	from   string
}

// NewMailer returns nil when SMTP is not configured.
func NewMailer(cfg config.SMTP) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &Mailer{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func NewMailerWithSender(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

func (m *Mailer) Send(to string, b Bill, html []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Your order %s at %s", b.OrderNumber, b.TheaterName))
	msg.SetBody("text/html", string(html))
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send receipt %s: %w", b.OrderNumber, err)
	}
	return nil
}
