// Package jwt реализует разбор и генерацию сессионных токенов identity-провайдера.
//
// SessionClaims расширяет стандартные claims JWT полями аккаунта: стабильным
// идентификатором субъекта, почтой и необязательным уровнем админ-доступа.
// Уровень доступа в claims может отставать от хранилища — gate-мидлварь
// использует его как быстрый путь и падает обратно на запись администратора.
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// SessionClaims описывает данные сессии, хранящиеся в JWT.
type SessionClaims struct {
	ClerkID              string             `json:"clerk_id"`               // Идентификатор субъекта в identity-провайдере
	Email                string             `json:"email"`                  // Электронная почта
	AccessLevel          models.AccessLevel `json:"access_level,omitempty"` // Уровень админ-доступа, может отсутствовать
	jwt.RegisteredClaims                    // Встроенные стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}

// GenerateToken создает JWT токен с заданными claims, подписывая его секретным ключом.
//
// Время жизни токена определяется полем tokenTTL.
func (j *MakerImpl) GenerateToken(clerkID, email string, level models.AccessLevel) (string, error) {
	claims := SessionClaims{
		ClerkID:     clerkID,
		Email:       email,
		AccessLevel: level,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clerkID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken парсит JWT токен, проверяет его подпись и валидность,
// возвращает SessionClaims с данными, если токен корректен.
func (j *MakerImpl) ParseToken(tokenStr string) (*SessionClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
