package models

import "time"

// AccessLevel уровень доступа администратора. Уровни полностью упорядочены:
// Full > Partial > Limited, каждый старший уровень включает права младших.
type AccessLevel string

const (
	// AccessFull — полный доступ ко всем страницам админ-панели.
	AccessFull AccessLevel = "full_access"
	// AccessPartial — доступ к большинству страниц, кроме настроек.
	AccessPartial AccessLevel = "partial_access"
	// AccessLimited — доступ только к базовым страницам.
	AccessLimited AccessLevel = "limited_access"
)

// Rank возвращает позицию уровня в порядке привилегий.
// Неизвестный или пустой уровень имеет ранг 0 и не даёт доступа никуда.
func (l AccessLevel) Rank() int {
	switch l {
	case AccessFull:
		return 3
	case AccessPartial:
		return 2
	case AccessLimited:
		return 1
	default:
		return 0
	}
}

// Label возвращает человекочитаемое название уровня для сообщений об отказе.
func (l AccessLevel) Label() string {
	switch l {
	case AccessFull:
		return "Full Access"
	case AccessPartial:
		return "Partial Access"
	case AccessLimited:
		return "Limited Access"
	default:
		return "No Access"
	}
}

// Admin представляет запись администратора. Запись всегда ссылается на
// существующий Account по тому же ClerkID; аккаунт с такой записью нельзя
// удалить через самообслуживание.
type Admin struct {
	ClerkID       string
	AccessLevel   AccessLevel
	BecameAdminAt time.Time
}
