// Пакет service — бизнес-логика бота: поиск по каталогу,
// fuzzy-подсказки, отложенные удаления, индексация каналов.
//
// search.go — сервис поиска. Координирует repository и Prometheus-метрики.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/repository"
	"github.com/aaghaz370/stroomabot/internal/token"
)

// Ошибки сервисного слоя.
var (
	// ErrStoreUnavailable — хранилище недоступно или не ответило вовремя.
	// Пользователю показывается общий текст сбоя без деталей.
	ErrStoreUnavailable = errors.New("хранилище каталога недоступно")
)

// Prometheus-метрики поиска.
var (
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_search_total",
		Help: "Общее количество поисковых запросов.",
	})
	searchEmptyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_search_empty_total",
		Help: "Количество запросов без единого совпадения.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// SearchResult — страница результатов поиска.
type SearchResult struct {
	// Items — файлы текущей страницы в порядке каталога
	Items []*model.FileRecord
	// Total — общее количество совпадений
	Total int
	// Query — исходный запрос
	Query string
	// Filters — применённые фильтры (ключи token.Kind*)
	Filters map[string]string
	// Page — номер страницы (с 1)
	Page int
	// TotalPages — количество страниц (минимум 1)
	TotalPages int
	// PageSize — размер страницы
	PageSize int
}

// SearchService — поиск файлов по каталогу.
type SearchService struct {
	fileRepo repository.FileRepository
	pageSize int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSearchService создаёт сервис поиска.
// timeout — потолок одного обращения к хранилищу.
func NewSearchService(
	fileRepo repository.FileRepository,
	pageSize int,
	timeout time.Duration,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		fileRepo: fileRepo,
		pageSize: pageSize,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "search_service")),
	}
}

// Search выполняет поиск по запросу и фильтрам, возвращает страницу page.
// Страница за пределами выдачи не ошибка: выдача могла сократиться между
// нажатиями кнопок, устаревший номер прижимается к последней реальной
// странице.
func (s *SearchService) Search(ctx context.Context, query string, filters map[string]string, page int) (*SearchResult, error) {
	start := time.Now()
	searchTotal.Inc()

	if page < 1 {
		page = 1
	}

	params, err := buildParams(query, filters, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, total, err := s.fileRepo.Search(ctx, params)
	if err != nil {
		s.logger.Error("Поиск не выполнен",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())
	if total == 0 {
		searchEmptyTotal.Inc()
	}

	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	// Устаревший номер страницы прижимается к последней реальной:
	// навигация со старой кнопки не должна показывать пустую страницу
	if page > totalPages {
		page = totalPages
		params.Offset = (page - 1) * s.pageSize
		items, total, err = s.fileRepo.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	s.logger.Debug("Поиск выполнен",
		slog.String("query", query),
		slog.Int("total", total),
		slog.Int("page", page),
		slog.Duration("duration", duration),
	)

	return &SearchResult{
		Items:      items,
		Total:      total,
		Query:      query,
		Filters:    filters,
		Page:       page,
		TotalPages: totalPages,
		PageSize:   s.pageSize,
	}, nil
}

// buildParams транслирует запрос и фильтры в параметры репозитория.
// Значения фильтров уже валидированы кодеком токенов; здесь — разбор чисел.
func buildParams(query string, filters map[string]string, limit, offset int) (repository.SearchParams, error) {
	params := repository.SearchParams{
		Query:  query,
		Limit:  limit,
		Offset: offset,
	}

	for kind, value := range filters {
		switch kind {
		case token.KindQuality:
			v := value
			params.Quality = &v
		case token.KindLanguage:
			v := value
			params.Language = &v
		case token.KindYear:
			y, err := strconv.Atoi(value)
			if err != nil {
				return params, fmt.Errorf("некорректный год фильтра: %q", value)
			}
			params.Year = &y
		case token.KindSeason:
			n, err := strconv.Atoi(value)
			if err != nil {
				return params, fmt.Errorf("некорректный сезон фильтра: %q", value)
			}
			params.Season = &n
		default:
			return params, fmt.Errorf("неизвестный вид фильтра: %q", kind)
		}
	}
	return params, nil
}
