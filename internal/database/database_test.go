package database

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aaghaz370/stroomabot/internal/config"
	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/repository"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
// Возвращает конфиг; контейнер останавливается в t.Cleanup.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("stroomabot_test"),
		postgres.WithUsername("stroomabot"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	os.Setenv("SB_DB_HOST", host)
	os.Setenv("SB_DB_PORT", port.Port())
	os.Setenv("SB_DB_NAME", "stroomabot_test")
	os.Setenv("SB_DB_USER", "stroomabot")
	os.Setenv("SB_DB_PASSWORD", "test-password")
	os.Setenv("SB_DB_SSL_MODE", "disable")
	os.Setenv("SB_BOT_TOKEN", "123:test-token")
	os.Setenv("SB_GROUP_CHAT_ID", "-1001")
	os.Setenv("SB_ADMIN_IDS", "1")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

// TestConnect проверяет подключение к PostgreSQL через pgxpool.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() вернул ошибку: %v", err)
	}
}

// TestMigrate проверяет применение миграций и создание таблиц.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	// Повторное применение — без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"files",
		"users",
		"channels",
		"delete_queue",
	}

	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}
}

// TestFileRepository_SearchOrder проверяет на живой БД порядок каталога
// и идемпотентность upsert.
func TestFileRepository_SearchOrder(t *testing.T) {
	cfg := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	repo := repository.NewFileRepository(pool)

	names := []string{"Alpha.2020.720p.mkv", "Beta.2021.1080p.mkv", "Alpha.Sequel.2022.480p.mkv"}
	for i, name := range names {
		f := &model.FileRecord{
			ChannelID: -100500,
			MessageID: int64(i + 1),
			FileName:  name,
			FileSize:  1024,
			Quality:   "720p",
			Languages: []string{"Hindi"},
		}
		if err := repo.Upsert(ctx, f); err != nil {
			t.Fatalf("Upsert(%q) вернул ошибку: %v", name, err)
		}
	}

	// Повторная индексация первого сообщения — позиция не меняется
	f := &model.FileRecord{
		ChannelID: -100500,
		MessageID: 1,
		FileName:  "Alpha.2020.720p.Hindi.mkv",
		FileSize:  2048,
		Quality:   "720p",
		Languages: []string{"Hindi"},
	}
	if err := repo.Upsert(ctx, f); err != nil {
		t.Fatalf("повторный Upsert вернул ошибку: %v", err)
	}

	items, total, err := repo.Search(ctx, repository.SearchParams{Query: "Alpha", Limit: 10})
	if err != nil {
		t.Fatalf("Search() вернул ошибку: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, ожидалось 2", total)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, ожидалось 2", len(items))
	}
	// Обновлённая запись осталась первой в порядке каталога
	if items[0].FileName != "Alpha.2020.720p.Hindi.mkv" {
		t.Errorf("items[0] = %q, ожидалось обновлённое имя первой записи", items[0].FileName)
	}
}
