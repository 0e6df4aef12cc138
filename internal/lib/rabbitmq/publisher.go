// Package rabbitmq содержит публикацию сообщений в RabbitMQ.
// Через очередь уходят задания на отправку писем с кодами подтверждения,
// сама доставка почты выполняется внешним воркером.
package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// MailJob задание на отправку письма с кодом подтверждения.
type MailJob struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

// Notifier публикует задания на отправку писем в exchange уведомлений.
type Notifier struct {
	ch *amqp.Channel
}

// NewNotifier создаёт Notifier поверх открытого канала.
func NewNotifier(ch *amqp.Channel) *Notifier {
	return &Notifier{ch: ch}
}

// PublishVerificationCode публикует задание на письмо с кодом подтверждения.
func (n *Notifier) PublishVerificationCode(email string, purpose models.Purpose, code string) error {
	return PublishMessage(n.ch, "notifications", "verification", MailJob{
		Email:   email,
		Purpose: string(purpose),
		Code:    code,
	})
}

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
