// stroomabot — бот поиска по каталогу медиафайлов сообщества.
//
// Индексирует посты каналов-источников, отвечает на поисковые запросы
// в групповом чате, доставляет результаты в личные сообщения и удаляет
// их по истечении срока хранения.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/aaghaz370/stroomabot/internal/api/handlers"
	"github.com/aaghaz370/stroomabot/internal/api/middleware"
	"github.com/aaghaz370/stroomabot/internal/bot"
	"github.com/aaghaz370/stroomabot/internal/config"
	"github.com/aaghaz370/stroomabot/internal/database"
	"github.com/aaghaz370/stroomabot/internal/repository"
	"github.com/aaghaz370/stroomabot/internal/server"
	"github.com/aaghaz370/stroomabot/internal/service"
	"github.com/aaghaz370/stroomabot/internal/tgclient"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Фатальная ошибка", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Запуск stroomabot",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel.String()),
	)

	ctx := context.Background()

	// Применение миграций БД
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("ошибка миграции БД: %w", err)
	}

	// Подключение к PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	defer pool.Close()

	// *sql.DB поверх pgxpool — для SQL checker dephealth
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	// Репозитории
	fileRepo := repository.NewFileRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	channelRepo := repository.NewChannelRepository(pool)
	deletionRepo := repository.NewDeletionRepository(pool)

	// Клиент Bot API и проверка токена на старте
	tg := tgclient.New(cfg.APIBaseURL, cfg.BotToken, cfg.DeliveryTimeout, logger)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("ошибка проверки токена бота (getMe): %w", err)
	}
	logger.Info("Бот авторизован",
		slog.Int64("bot_id", me.ID),
		slog.String("username", me.Username),
	)

	// Сервисы
	cacheService := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	searchService := service.NewSearchService(fileRepo, cfg.PageSize, cfg.StoreTimeout, logger)
	fuzzyService := service.NewFuzzyService(fileRepo, cacheService, cfg.FuzzyThreshold, cfg.FuzzyLimit, cfg.StoreTimeout, logger)
	renderer := service.NewRenderer(cfg.PageSize)
	indexerService := service.NewIndexerService(fileRepo, channelRepo, cacheService, cfg.StoreTimeout, logger)
	sweeperService := service.NewSweeperService(deletionRepo, tg, cfg.SweepInterval, cfg.DeliveryTimeout, logger)

	// Обработчик и диспетчер обновлений
	handler := bot.NewHandler(cfg, tg, searchService, fuzzyService, renderer, indexerService,
		userRepo, deletionRepo, fileRepo, channelRepo, logger)
	dispatcher := bot.NewDispatcher(tg, handler, cfg.Workers, cfg.PollTimeout, logger)

	// Фоновые процессы: диспетчер и чистильщик очереди удалений
	botCtx, cancelBot := context.WithCancel(ctx)
	defer cancelBot()

	go func() {
		if err := dispatcher.Run(botCtx); err != nil && botCtx.Err() == nil {
			logger.Error("Диспетчер завершился с ошибкой", slog.String("error", err.Error()))
		}
	}()

	sweeperService.Start(botCtx)

	// Мониторинг здоровья зависимостей
	dephealthService, err := service.NewDephealthService(
		"stroomabot",
		cfg.DepHealthGroup,
		sqlDB,
		postgresURL(cfg),
		cfg.APIBaseURL,
		cfg.DepHealthInterval,
		logger,
	)
	if err != nil {
		logger.Warn("Мониторинг зависимостей не инициализирован",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthService.Start(ctx); err != nil {
		logger.Warn("Мониторинг зависимостей не запущен",
			slog.String("error", err.Error()),
		)
		dephealthService = nil
	}

	// Служебный HTTP-сервер: health probes и метрики
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		tgclient.NewReadinessChecker(tg),
	)

	srv := server.New(cfg, logger, healthHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// Run блокирует до сигнала завершения (SIGINT, SIGTERM)
	runErr := srv.Run()

	// Остановка фоновых процессов
	cancelBot()
	sweeperService.Stop()
	if dephealthService != nil {
		dephealthService.Stop()
	}

	logger.Info("stroomabot остановлен")
	return runErr
}

// postgresURL собирает URL подключения к PostgreSQL для лейблов
// метрик здоровья зависимостей.
func postgresURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:     cfg.DBName,
		RawQuery: "sslmode=" + cfg.DBSSLMode,
	}
	return u.String()
}
