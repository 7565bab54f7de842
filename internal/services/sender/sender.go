// Package sender доставляет уведомления из очереди по SMTP.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/lib/smtp"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/rabbitmq"
)

// Transport открывает соединение с почтовым сервером.
type Transport interface {
	Connect() (smtp.Client, error)
	GetSMTPUser() string
}

// Service превращает сообщения очереди в письма.
type Service struct {
	transport Transport
	validate  *validator.Validate
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(log *slog.Logger, transport Transport) *Service {
	return &Service{
		transport: transport,
		validate:  validator.New(),
		log:       log,
	}
}

// HandleNotification разбирает тело сообщения и отправляет письмо. Сбой доставки
// возвращается потребителю для повтора, нечитаемое сообщение помечается rabbitmq.ErrPoison.
func (s *Service) HandleNotification(body []byte) error {
	const op = "sender.HandleNotification"
	var message models.Notification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w: %w", op, rabbitmq.ErrPoison, err)
	}
	if err := s.validate.Struct(message); err != nil {
		s.log.Error("invalid notification", sl.Err(err))
		return fmt.Errorf("%s: invalid notification: %w: %w", op, rabbitmq.ErrPoison, err)
	}

	if err := s.sendEmail([]string{message.Email}, message.Subject, message.Text); err != nil {
		metrics.RecordNotification("email", "failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordNotification("email", "delivered")
	return nil
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
