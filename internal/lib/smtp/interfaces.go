// Package smtp реализует SMTP-транспорт с обязательным STARTTLS и PLAIN-аутентификацией.
package smtp

import "io"

// Client — часть *smtp.Client, нужная для отправки одного письма.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}
