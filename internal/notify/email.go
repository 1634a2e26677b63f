package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier sends events over SMTP with STARTTLS (port 587) or plain
// (port 25) transport.
type EmailNotifier struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	Recipient string

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(host, port, username, password, from, recipient string) *EmailNotifier {
	return &EmailNotifier{
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		From:      from,
		Recipient: recipient,
		sendMail:  smtp.SendMail,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(_ context.Context, ev Event) error {
	subject := fmt.Sprintf("crypto bot: %s", ev.Type)
	if ev.Pair != "" {
		subject = fmt.Sprintf("crypto bot: %s %s", ev.Type, ev.Pair)
	}

	var msg strings.Builder
	msg.WriteString("From: " + e.From + "\r\n")
	msg.WriteString("To: " + e.Recipient + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(ev.Message + "\r\n")

	auth := smtp.PlainAuth("", e.Username, e.Password, e.Host)
	addr := e.Host + ":" + e.Port
	if err := e.sendMail(addr, auth, e.From, []string{e.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
