package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// DeletionRepository — долговременная очередь отложенных удалений сообщений.
// Очередь переживает перезапуск процесса: задачи хранятся в БД, а не в памяти.
type DeletionRepository interface {
	// Schedule ставит задачу удаления. Повторная постановка для той же
	// пары (chat_id, message_id) заменяет срок, дубликата не создаёт.
	Schedule(ctx context.Context, task *model.DeletionTask) error
	// Due возвращает все задачи со сроком, наступившим к моменту now.
	Due(ctx context.Context, now time.Time) ([]*model.DeletionTask, error)
	// Remove снимает задачу из очереди.
	Remove(ctx context.Context, chatID, messageID int64) error
	// Count возвращает количество ожидающих задач.
	Count(ctx context.Context) (int, error)
}

type deletionRepo struct {
	db DBTX
}

// NewDeletionRepository создаёт репозиторий очереди удалений.
func NewDeletionRepository(db DBTX) DeletionRepository {
	return &deletionRepo{db: db}
}

// Schedule ставит или обновляет задачу удаления.
func (r *deletionRepo) Schedule(ctx context.Context, task *model.DeletionTask) error {
	query := `
		INSERT INTO delete_queue (chat_id, message_id, delete_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET
			delete_at = EXCLUDED.delete_at`

	if _, err := r.db.Exec(ctx, query, task.ChatID, task.MessageID, task.DeleteAt); err != nil {
		return fmt.Errorf("ошибка постановки задачи удаления: %w", err)
	}
	return nil
}

// Due возвращает задачи с наступившим сроком в порядке срока.
func (r *deletionRepo) Due(ctx context.Context, now time.Time) ([]*model.DeletionTask, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chat_id, message_id, delete_at
		 FROM delete_queue
		 WHERE delete_at <= $1
		 ORDER BY delete_at`, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки задач удаления: %w", err)
	}
	defer rows.Close()

	var tasks []*model.DeletionTask
	for rows.Next() {
		t := &model.DeletionTask{}
		if err := rows.Scan(&t.ChatID, &t.MessageID, &t.DeleteAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации задач: %w", err)
	}
	return tasks, nil
}

// Remove снимает задачу из очереди. Отсутствие задачи ошибкой не считается.
func (r *deletionRepo) Remove(ctx context.Context, chatID, messageID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM delete_queue WHERE chat_id = $1 AND message_id = $2`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("ошибка снятия задачи удаления: %w", err)
	}
	return nil
}

// Count возвращает размер очереди.
func (r *deletionRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM delete_queue`).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта задач удаления: %w", err)
	}
	return total, nil
}
