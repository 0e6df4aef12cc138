package models

import "time"

// Purpose назначение кода подтверждения. Код, выданный для одного назначения,
// не проходит проверку для другого.
type Purpose string

const (
	// PurposePasswordReset — сброс пароля.
	PurposePasswordReset Purpose = "password_reset"
	// PurposeEmailChange — подтверждение смены почты.
	PurposeEmailChange Purpose = "email_change"
)

// VerificationCode эфемерная запись кода подтверждения.
// Запись удаляется при успешной проверке или истекает по TTL;
// после этого код не должен быть доступен ни при каком чтении.
type VerificationCode struct {
	Code      string    // Шестизначный числовой код
	ExpiresAt time.Time // Момент истечения
}

// Expired сообщает, истёк ли код к моменту now.
func (v VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
