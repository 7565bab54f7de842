package models

// Notification — письмо, которое нужно доставить пользователю.
type Notification struct {
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Text    string `json:"text" validate:"required"`
}
