package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, channel_id, message_id, file_name, file_size,
	quality, year, languages, season, created_at, updated_at`

// SearchParams — параметры поиска по каталогу.
// Query — подстрочное совпадение без учёта регистра (пустая строка
// совпадает со всеми именами). Остальные поля — указатели,
// nil = фильтр не применяется, иначе точное равенство
// (язык — принадлежность множеству languages записи).
type SearchParams struct {
	// Query — поисковый запрос по имени файла (substring, case-insensitive)
	Query string
	// Quality — фильтр по качеству (480p/720p/1080p/2160p)
	Quality *string
	// Year — фильтр по году выпуска
	Year *int
	// Language — фильтр по языку (запись совпадает, если язык входит в её набор)
	Language *string
	// Season — фильтр по номеру сезона
	Season *int
	// Limit — количество результатов
	Limit int
	// Offset — смещение
	Offset int
}

// FileRepository — доступ к каталогу файлов.
type FileRepository interface {
	// Upsert вставляет или обновляет запись по ключу (channel_id, message_id).
	// Порядковый номер записи при обновлении не меняется.
	Upsert(ctx context.Context, f *model.FileRecord) error
	// Search выполняет поиск с фильтрами и пагинацией.
	// Возвращает: страницу результатов в порядке добавления в каталог,
	// общее количество совпадений, ошибку.
	Search(ctx context.Context, params SearchParams) ([]*model.FileRecord, int, error)
	// AllNames возвращает имена всех файлов каталога в порядке добавления
	// (вход fuzzy-поиска; limit ограничивает размер выборки, 0 = без лимита).
	AllNames(ctx context.Context, limit int) ([]string, error)
	// Count возвращает общее количество записей каталога.
	Count(ctx context.Context) (int, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий каталога файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Upsert вставляет или обновляет запись файла (INSERT ON CONFLICT UPDATE).
// Повторная индексация того же сообщения обновляет атрибуты,
// но не создаёт дубликата и не меняет позицию в каталоге.
func (r *fileRepo) Upsert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (channel_id, message_id, file_name, file_size,
			quality, year, languages, season)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (channel_id, message_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			file_size = EXCLUDED.file_size,
			quality = EXCLUDED.quality,
			year = EXCLUDED.year,
			languages = EXCLUDED.languages,
			season = EXCLUDED.season,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ChannelID, f.MessageID, f.FileName, f.FileSize,
		f.Quality, f.Year, f.Languages, f.Season,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert файла: %w", err)
	}
	return nil
}

// Search выполняет поиск файлов с динамическими фильтрами и пагинацией.
// Порядок результатов — порядок добавления в каталог (ORDER BY id),
// детерминированный и стабильный между страницами.
func (r *fileRepo) Search(ctx context.Context, params SearchParams) ([]*model.FileRecord, int, error) {
	where, args := buildSearchWhere(params, 1)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM files %s ORDER BY id LIMIT $%d OFFSET $%d`,
		fileColumns, where, argNum, argNum+1,
	)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f := &model.FileRecord{}
		if err := rows.Scan(
			&f.ID, &f.ChannelID, &f.MessageID, &f.FileName, &f.FileSize,
			&f.Quality, &f.Year, &f.Languages, &f.Season, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Общее количество — с теми же фильтрами, без LIMIT/OFFSET
	countWhere, countArgs := buildSearchWhere(params, 1)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, countWhere)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// AllNames возвращает имена всех файлов в порядке каталога.
func (r *fileRepo) AllNames(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT file_name FROM files ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения имён файлов: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования имени: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации имён: %w", err)
	}
	return names, nil
}

// Count возвращает количество записей каталога.
func (r *fileRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}
	return total, nil
}

// buildSearchWhere строит WHERE-условие и аргументы для поиска файлов.
// startArg — номер первого $-параметра (для корректной нумерации).
func buildSearchWhere(params SearchParams, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	// Подстрочный поиск по имени (пустой запрос совпадает со всеми)
	if params.Query != "" {
		conditions = append(conditions, fmt.Sprintf("file_name ILIKE $%d", argNum))
		args = append(args, "%"+escapeLike(params.Query)+"%")
		argNum++
	}

	// Фильтр по качеству (точное равенство)
	if params.Quality != nil {
		conditions = append(conditions, fmt.Sprintf("quality = $%d", argNum))
		args = append(args, *params.Quality)
		argNum++
	}

	// Фильтр по году (точное равенство)
	if params.Year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", argNum))
		args = append(args, *params.Year)
		argNum++
	}

	// Фильтр по языку (принадлежность множеству languages записи)
	if params.Language != nil {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(languages)", argNum))
		args = append(args, *params.Language)
		argNum++
	}

	// Фильтр по сезону (точное равенство)
	if params.Season != nil {
		conditions = append(conditions, fmt.Sprintf("season = $%d", argNum))
		args = append(args, *params.Season)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// escapeLike экранирует метасимволы LIKE в пользовательском запросе:
// % и _ в тексте запроса — литералы, а не шаблоны.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
