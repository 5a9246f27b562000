package model

import "time"

// UserRecord — пользователь бота.
// Единственный атрибут политики — флаг блокировки: заблокированный пользователь
// не получает ни результатов поиска, ни ответов на callback-действия.
type UserRecord struct {
	// UserID — идентификатор пользователя в мессенджере
	UserID int64
	// Banned — флаг блокировки
	Banned bool
	// CreatedAt — время первой регистрации пользователя
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}
