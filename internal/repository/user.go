package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// UserRepository — учёт пользователей бота и флаг блокировки.
type UserRepository interface {
	// Touch регистрирует пользователя при первом обращении (идемпотентно).
	Touch(ctx context.Context, userID int64) error
	// IsBanned возвращает флаг блокировки. Неизвестный пользователь — не заблокирован.
	IsBanned(ctx context.Context, userID int64) (bool, error)
	// SetBanned выставляет флаг блокировки (upsert: работает и для
	// пользователей, которых бот ещё не видел).
	SetBanned(ctx context.Context, userID int64, banned bool) error
	// AllIDs возвращает идентификаторы всех известных пользователей
	// (получатели рассылки).
	AllIDs(ctx context.Context) ([]int64, error)
	// Count возвращает количество известных пользователей.
	Count(ctx context.Context) (int, error)
	// Get возвращает запись пользователя или ErrNotFound.
	Get(ctx context.Context, userID int64) (*model.UserRecord, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

// Touch регистрирует пользователя, если его ещё нет.
func (r *userRepo) Touch(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO users (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	return nil
}

// IsBanned проверяет флаг блокировки пользователя.
func (r *userRepo) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var banned bool
	err := r.db.QueryRow(ctx,
		`SELECT banned FROM users WHERE user_id = $1`, userID,
	).Scan(&banned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Неизвестный пользователь по умолчанию не заблокирован
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки блокировки: %w", err)
	}
	return banned, nil
}

// SetBanned выставляет флаг блокировки (создаёт запись при необходимости).
func (r *userRepo) SetBanned(ctx context.Context, userID int64, banned bool) error {
	query := `
		INSERT INTO users (user_id, banned)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			banned = EXCLUDED.banned,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, userID, banned); err != nil {
		return fmt.Errorf("ошибка изменения блокировки: %w", err)
	}
	return nil
}

// AllIDs возвращает идентификаторы всех пользователей в порядке регистрации.
func (r *userRepo) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации пользователей: %w", err)
	}
	return ids, nil
}

// Count возвращает количество пользователей.
func (r *userRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return total, nil
}

// Get возвращает запись пользователя или ErrNotFound.
func (r *userRepo) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	u := &model.UserRecord{}
	err := r.db.QueryRow(ctx,
		`SELECT user_id, banned, created_at, updated_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.UserID, &u.Banned, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
