// Package subscription описывает явный конечный автомат статусов подписки.
// Переходы заданы таблицей (текущий статус, целевой статус из события);
// неопределённый переход — ошибка, а не молчаливая перезапись полей.
package subscription

import "fmt"

// Status статус подписки аккаунта.
type Status string

const (
	// StatusFree базовое состояние без платной подписки.
	StatusFree Status = "free"
	// StatusActive оплаченная активная подписка.
	StatusActive Status = "active"
	// StatusTrialing пробный период платного тарифа.
	StatusTrialing Status = "trialing"
	// StatusPastDue просроченный платёж, доступ пока сохраняется.
	StatusPastDue Status = "past_due"
	// StatusCanceled подписка отменена (в том числе до конца периода).
	StatusCanceled Status = "canceled"
	// StatusIncomplete первый платёж не завершён.
	StatusIncomplete Status = "incomplete"
)

// Parse разбирает значение статуса из события биллинг-провайдера.
func Parse(s string) (Status, error) {
	switch Status(s) {
	case StatusFree, StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusIncomplete:
		return Status(s), nil
	default:
		return "", fmt.Errorf("subscription.Parse: unknown status %q", s)
	}
}

// Paid сообщает, подразумевает ли статус платные отношения с биллингом.
func (s Status) Paid() bool {
	return s != StatusFree && s != ""
}

// transitions таблица допустимых переходов. Ключ — текущий статус,
// значение — множество статусов, в которые из него можно перейти.
// Переход в то же состояние всегда допустим (повторная доставка события).
var transitions = map[Status]map[Status]struct{}{
	StatusFree: {
		StatusActive:     {},
		StatusTrialing:   {},
		StatusIncomplete: {},
	},
	StatusIncomplete: {
		StatusActive:   {},
		StatusTrialing: {},
		StatusCanceled: {},
		StatusFree:     {},
	},
	StatusTrialing: {
		StatusActive:   {},
		StatusPastDue:  {},
		StatusCanceled: {},
		StatusFree:     {},
	},
	StatusActive: {
		StatusPastDue:  {},
		StatusCanceled: {},
		StatusFree:     {},
	},
	StatusPastDue: {
		StatusActive:   {},
		StatusCanceled: {},
		StatusFree:     {},
	},
	StatusCanceled: {
		StatusActive:   {},
		StatusTrialing: {},
		StatusFree:     {},
	},
}

// Apply проверяет переход current -> next и возвращает итоговый статус.
// Недопустимый переход возвращает ошибку с обоими статусами.
func Apply(current, next Status) (Status, error) {
	const op = "subscription.Apply"
	if current == next {
		return next, nil
	}
	allowed, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%s: unknown current status %q", op, current)
	}
	if _, ok := allowed[next]; !ok {
		return "", fmt.Errorf("%s: transition %q -> %q is not defined", op, current, next)
	}
	return next, nil
}
