// Пакет config — загрузка и валидация конфигурации бота
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации бота.
type Config struct {
	// --- Сервер (health/metrics) ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь БД
	DBUser string
	// Пароль пользователя БД
	DBPassword string
	// Режим SSL (disable, require, verify-full)
	DBSSLMode string

	// --- Telegram ---

	// Токен бота (обязательный)
	BotToken string
	// Базовый URL Bot API (переопределяется в тестах)
	APIBaseURL string
	// Идентификатор группового чата, в котором бот принимает запросы
	GroupChatID int64
	// Идентификаторы администраторов
	AdminIDs []int64
	// Таймаут long-poll запроса getUpdates
	PollTimeout time.Duration

	// --- Поиск и выдача ---

	// Размер страницы результатов
	PageSize int
	// Порог fuzzy-похожести (строго больше)
	FuzzyThreshold int
	// Максимум fuzzy-подсказок
	FuzzyLimit int
	// Размер LRU-кэша имён каталога
	CacheSize int
	// TTL записей кэша имён
	CacheTTL time.Duration

	// --- Отложенные удаления ---

	// Задержка до удаления доставленных сообщений
	DeleteDelay time.Duration
	// Период прохода чистильщика очереди
	SweepInterval time.Duration

	// --- Обработка обновлений ---

	// Количество одновременно обрабатываемых обновлений
	Workers int
	// Таймаут одного обращения к хранилищу
	StoreTimeout time.Duration
	// Таймаут одного обращения к Bot API
	DeliveryTimeout time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Dependency health ---

	// Имя группы в метриках здоровья зависимостей
	DepHealthGroup string
	// Период проверки зависимостей
	DepHealthInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SB_PORT: %w", err)
	}

	// SB_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("SB_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("SB_LOG_LEVEL: %w", err)
	}

	// SB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SB_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("SB_DB_HOST", "localhost")

	cfg.DBPort, err = getEnvInt("SB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SB_DB_PORT: %w", err)
	}

	cfg.DBName = getEnvDefault("SB_DB_NAME", "stroomabot")
	cfg.DBUser = getEnvDefault("SB_DB_USER", "stroomabot")

	// SB_DB_PASSWORD — пароль БД (обязательный)
	cfg.DBPassword, err = getEnvRequired("SB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("SB_DB_SSL_MODE", "disable")

	// --- Telegram ---

	// SB_BOT_TOKEN — токен бота (обязательный)
	cfg.BotToken, err = getEnvRequired("SB_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	// SB_API_BASE_URL — базовый URL Bot API
	cfg.APIBaseURL = getEnvDefault("SB_API_BASE_URL", "https://api.telegram.org")

	// SB_GROUP_CHAT_ID — чат, в котором бот принимает поисковые запросы (обязательный)
	groupChat, err := getEnvRequired("SB_GROUP_CHAT_ID")
	if err != nil {
		return nil, err
	}
	cfg.GroupChatID, err = strconv.ParseInt(groupChat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("SB_GROUP_CHAT_ID: некорректный идентификатор чата: %q", groupChat)
	}

	// SB_ADMIN_IDS — список администраторов через запятую (обязательный)
	admins, err := getEnvRequired("SB_ADMIN_IDS")
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs, err = parseIDList(admins)
	if err != nil {
		return nil, fmt.Errorf("SB_ADMIN_IDS: %w", err)
	}

	// SB_POLL_TIMEOUT — таймаут long-poll (по умолчанию 30s)
	cfg.PollTimeout, err = getEnvDuration("SB_POLL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_POLL_TIMEOUT: %w", err)
	}

	// --- Поиск и выдача ---

	// SB_PAGE_SIZE — размер страницы результатов (по умолчанию 10)
	cfg.PageSize, err = getEnvInt("SB_PAGE_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("SB_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("SB_PAGE_SIZE: значение должно быть >= 1")
	}

	// SB_FUZZY_THRESHOLD — порог похожести (по умолчанию 60, строго больше)
	cfg.FuzzyThreshold, err = getEnvInt("SB_FUZZY_THRESHOLD", 60)
	if err != nil {
		return nil, fmt.Errorf("SB_FUZZY_THRESHOLD: %w", err)
	}

	// SB_FUZZY_LIMIT — максимум подсказок (по умолчанию 5)
	cfg.FuzzyLimit, err = getEnvInt("SB_FUZZY_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("SB_FUZZY_LIMIT: %w", err)
	}

	// SB_CACHE_SIZE — размер LRU-кэша имён (по умолчанию 4)
	cfg.CacheSize, err = getEnvInt("SB_CACHE_SIZE", 4)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_SIZE: %w", err)
	}

	// SB_CACHE_TTL — TTL кэша имён (по умолчанию 2m)
	cfg.CacheTTL, err = getEnvDuration("SB_CACHE_TTL", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_TTL: %w", err)
	}

	// --- Отложенные удаления ---

	// SB_DELETE_DELAY — задержка удаления (по умолчанию 15m)
	cfg.DeleteDelay, err = getEnvDuration("SB_DELETE_DELAY", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_DELETE_DELAY: %w", err)
	}

	// SB_SWEEP_INTERVAL — период чистильщика (по умолчанию 1m)
	cfg.SweepInterval, err = getEnvDuration("SB_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_SWEEP_INTERVAL: %w", err)
	}

	// --- Обработка обновлений ---

	// SB_WORKERS — параллелизм обработки (по умолчанию 8)
	cfg.Workers, err = getEnvInt("SB_WORKERS", 8)
	if err != nil {
		return nil, fmt.Errorf("SB_WORKERS: %w", err)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("SB_WORKERS: значение должно быть >= 1")
	}

	// SB_STORE_TIMEOUT — таймаут обращения к хранилищу (по умолчанию 5s)
	cfg.StoreTimeout, err = getEnvDuration("SB_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_STORE_TIMEOUT: %w", err)
	}

	// SB_DELIVERY_TIMEOUT — таймаут обращения к Bot API (по умолчанию 10s)
	cfg.DeliveryTimeout, err = getEnvDuration("SB_DELIVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DELIVERY_TIMEOUT: %w", err)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("SB_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("SB_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("SB_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Dependency health ---

	cfg.DepHealthGroup = getEnvDefault("SB_DEPHEALTH_GROUP", "stroomabot")

	cfg.DepHealthInterval, err = getEnvDuration("SB_DEPHEALTH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DEPHEALTH_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL в формате key=value.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseIDList разбирает список идентификаторов через запятую.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный идентификатор: %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("пустой список идентификаторов")
	}
	return ids, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
