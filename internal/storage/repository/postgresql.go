// Package repository реализует хранилище данных на основе PostgreSQL
// для учётных записей и администраторов. Предоставляет методы поиска
// по идентификатору identity-провайдера, идентификатору клиента биллинга
// и почте, а также атомарные обновления полей подписки.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrAccountNotFound возвращается, когда учётной записи нет совсем.
// Отличается от случая «запись есть, но поле биллинга не заполнено»:
// там вызывающий получает аккаунт с nil-полями.
var ErrAccountNotFound = errors.New("account not found")

// ErrAdminNotFound возвращается, когда у аккаунта нет записи администратора.
var ErrAdminNotFound = errors.New("admin record not found")

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с учётными записями и администраторами.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'accounts'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table accounts missing or query error: %w", err)
	}
	return nil
}
