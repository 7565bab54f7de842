package models

// User — владелец подписки. Учётными записями управляет слой аутентификации,
// ядру нужны только идентификатор и контакт для напоминаний.
type User struct {
	ID       string
	Email    string
	Username string
}
