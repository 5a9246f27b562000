package repository

import (
	"context"
	"fmt"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// ChannelRepository — реестр каналов-источников индексации.
type ChannelRepository interface {
	// Add регистрирует канал как источник (идемпотентно).
	Add(ctx context.Context, channelID int64) error
	// Exists проверяет, зарегистрирован ли канал.
	Exists(ctx context.Context, channelID int64) (bool, error)
	// List возвращает все зарегистрированные каналы.
	List(ctx context.Context) ([]*model.SourceChannel, error)
	// Count возвращает количество каналов-источников.
	Count(ctx context.Context) (int, error)
}

type channelRepo struct {
	db DBTX
}

// NewChannelRepository создаёт репозиторий каналов-источников.
func NewChannelRepository(db DBTX) ChannelRepository {
	return &channelRepo{db: db}
}

// Add регистрирует канал-источник.
func (r *channelRepo) Add(ctx context.Context, channelID int64) error {
	query := `
		INSERT INTO channels (channel_id)
		VALUES ($1)
		ON CONFLICT (channel_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, channelID); err != nil {
		return fmt.Errorf("ошибка регистрации канала: %w", err)
	}
	return nil
}

// Exists проверяет регистрацию канала.
func (r *channelRepo) Exists(ctx context.Context, channelID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE channel_id = $1)`, channelID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки канала: %w", err)
	}
	return exists, nil
}

// List возвращает каналы в порядке регистрации.
func (r *channelRepo) List(ctx context.Context) ([]*model.SourceChannel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT channel_id, added_at FROM channels ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каналов: %w", err)
	}
	defer rows.Close()

	var channels []*model.SourceChannel
	for rows.Next() {
		ch := &model.SourceChannel{}
		if err := rows.Scan(&ch.ChannelID, &ch.AddedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования канала: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации каналов: %w", err)
	}
	return channels, nil
}

// Count возвращает количество каналов.
func (r *channelRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM channels`).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта каналов: %w", err)
	}
	return total, nil
}
