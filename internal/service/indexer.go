// indexer.go — индексация медиафайлов из каналов-источников.
//
// Бот подписан на channel_post зарегистрированных каналов: каждое
// сообщение с документом или видео разбирается экстрактором метаданных
// и попадает в каталог. Повторная публикация того же сообщения
// обновляет запись, не создавая дубликата.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/metadata"
	"github.com/aaghaz370/stroomabot/internal/repository"
)

// Prometheus-метрики индексации.
var (
	indexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_indexed_total",
		Help: "Общее количество проиндексированных файлов.",
	})
	indexSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_index_skipped_total",
		Help: "Количество сообщений каналов без индексируемого файла.",
	})
)

// IndexerService — приём файлов из каналов-источников в каталог.
type IndexerService struct {
	fileRepo    repository.FileRepository
	channelRepo repository.ChannelRepository
	cache       *CacheService
	timeout     time.Duration
	logger      *slog.Logger
}

// NewIndexerService создаёт сервис индексации.
func NewIndexerService(
	fileRepo repository.FileRepository,
	channelRepo repository.ChannelRepository,
	cache *CacheService,
	timeout time.Duration,
	logger *slog.Logger,
) *IndexerService {
	return &IndexerService{
		fileRepo:    fileRepo,
		channelRepo: channelRepo,
		cache:       cache,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "indexer")),
	}
}

// IndexFile индексирует файл из сообщения канала.
// Сообщения незарегистрированных каналов молча игнорируются.
// Пустое имя файла — пропуск: без имени файл ненаходим.
func (s *IndexerService) IndexFile(ctx context.Context, channelID, messageID int64, fileName string, fileSize int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	known, err := s.channelRepo.Exists(ctx, channelID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !known {
		s.logger.Debug("Сообщение из незарегистрированного канала пропущено",
			slog.Int64("channel_id", channelID),
		)
		indexSkippedTotal.Inc()
		return nil
	}

	if fileName == "" {
		indexSkippedTotal.Inc()
		return nil
	}

	info := metadata.Extract(fileName)

	record := &model.FileRecord{
		ChannelID: channelID,
		MessageID: messageID,
		FileName:  fileName,
		FileSize:  fileSize,
		Quality:   info.Quality,
		Year:      info.Year,
		Languages: info.Languages,
		Season:    info.Season,
	}
	if record.Languages == nil {
		record.Languages = []string{}
	}

	if err := s.fileRepo.Upsert(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Список имён изменился — кэш fuzzy-подсказок устарел
	s.cache.Invalidate()
	indexedTotal.Inc()

	s.logger.Info("Файл проиндексирован",
		slog.Int64("channel_id", channelID),
		slog.Int64("message_id", messageID),
		slog.String("file_name", fileName),
		slog.String("quality", info.Quality),
	)

	return nil
}

// RegisterChannel регистрирует канал-источник.
func (s *IndexerService) RegisterChannel(ctx context.Context, channelID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.channelRepo.Add(ctx, channelID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.logger.Info("Канал-источник зарегистрирован",
		slog.Int64("channel_id", channelID),
	)
	return nil
}
