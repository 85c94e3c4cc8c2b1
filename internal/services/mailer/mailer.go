// Package mailer отправляет письма через SMTP-транспорт.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/lib/smtp"
)

// Message письмо для задачи mailing.send_email.
type Message struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required,max=998"`
	Body    string   `json:"body"`
}

// Mailer отправляет письма.
type Mailer struct {
	transport smtp.TransportInterface
	log       *slog.Logger
	validate  *validator.Validate
}

// New создает новый экземпляр Mailer.
func New(log *slog.Logger, transport smtp.TransportInterface) *Mailer {
	return &Mailer{
		transport: transport,
		log:       log,
		validate:  validator.New(),
	}
}

// Send проверяет и отправляет письмо.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	const op = "mailer.Send"
	if err := m.validate.Struct(msg); err != nil {
		return fmt.Errorf("%s: invalid message: %w", op, err)
	}
	for _, addr := range msg.To {
		if strings.ContainsAny(addr, "\r\n") {
			return fmt.Errorf("%s: invalid recipient %q", op, addr)
		}
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("%s: subject must be a single line", op)
	}

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	from := m.transport.Sender()
	data := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		msg.Body,
	}, "\r\n")

	client, err := m.transport.Connect(ctx)
	if err != nil {
		m.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		m.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range msg.To {
		if err := client.Rcpt(addr); err != nil {
			m.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		m.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(data)); err != nil {
		m.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		m.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		m.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	m.log.Info("email sent successfully", slog.Any("to", msg.To))
	return nil
}
