// sweeper.go — фоновый чистильщик очереди отложенных удалений.
//
// Доставленные в личку результаты живут ограниченное время: задача
// удаления ставится в БД при отправке, чистильщик периодически
// выбирает созревшие задачи и удаляет сообщения. Очередь в БД
// переживает перезапуск: первый проход выполняется сразу при старте
// и подбирает всё, что созрело за время простоя.
//
// Запускается как горутина с периодическим тикером (SB_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aaghaz370/stroomabot/internal/repository"
	"github.com/aaghaz370/stroomabot/internal/tgclient"
)

// Prometheus-метрики чистильщика.
var (
	sweeperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweeper_runs_total",
		Help: "Общее количество проходов чистильщика",
	})
	sweeperDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweeper_deleted_total",
		Help: "Общее количество удалённых сообщений",
	})
	sweeperErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_sweeper_errors_total",
		Help: "Общее количество ошибок удаления",
	})
	sweeperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_sweeper_duration_seconds",
		Help:    "Длительность прохода чистильщика в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// MessageDeleter — часть клиента Bot API, нужная чистильщику.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// SweepResult — результат одного прохода чистильщика.
type SweepResult struct {
	// Deleted — количество удалённых сообщений
	Deleted int
	// Gone — количество сообщений, удалённых кем-то раньше
	Gone int
	// Errors — количество ошибок
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// SweeperService — фоновый чистильщик очереди удалений.
type SweeperService struct {
	queue    repository.DeletionRepository
	deleter  MessageDeleter
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweeperService создаёт чистильщик.
func NewSweeperService(
	queue repository.DeletionRepository,
	deleter MessageDeleter,
	interval time.Duration,
	timeout time.Duration,
	logger *slog.Logger,
) *SweeperService {
	return &SweeperService{
		queue:    queue,
		deleter:  deleter,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину чистильщика.
// Вызывается один раз при старте приложения.
func (s *SweeperService) Start(ctx context.Context) {
	swCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(swCtx)

	s.logger.Info("Чистильщик очереди удалений запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс.
func (s *SweeperService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Чистильщик остановлен")
}

// run — основной цикл фоновой горутины.
func (s *SweeperService) run(ctx context.Context) {
	// Первый проход — сразу после старта: подбирает созревшее за простой
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход: выбирает созревшие задачи и удаляет
// сообщения. Задача снимается с очереди после первой попытки
// независимо от исхода — повторная попытка удаления бессмысленна:
// сообщение либо удалено, либо недоступно навсегда.
// Потокобезопасен: mutex защищает от параллельного запуска.
func (s *SweeperService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	tasks, err := s.queue.Due(qctx, time.Now().UTC())
	cancel()
	if err != nil {
		s.logger.Error("Чистильщик: ошибка выборки задач",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	for _, task := range tasks {
		dctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.deleter.DeleteMessage(dctx, task.ChatID, task.MessageID)
		cancel()

		switch {
		case err == nil:
			result.Deleted++
		case tgclient.IsGone(err):
			// Сообщение уже удалено вручную — не ошибка
			result.Gone++
		default:
			s.logger.Error("Чистильщик: ошибка удаления сообщения",
				slog.Int64("chat_id", task.ChatID),
				slog.Int64("message_id", task.MessageID),
				slog.String("error", err.Error()),
			)
			result.Errors++
		}

		// Снимаем задачу после первой попытки независимо от исхода
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := s.queue.Remove(rctx, task.ChatID, task.MessageID); err != nil {
			s.logger.Error("Чистильщик: ошибка снятия задачи",
				slog.Int64("chat_id", task.ChatID),
				slog.Int64("message_id", task.MessageID),
				slog.String("error", err.Error()),
			)
			result.Errors++
		}
		cancel()
	}

	result.Duration = time.Since(start)

	sweeperRunsTotal.Inc()
	sweeperDeletedTotal.Add(float64(result.Deleted))
	sweeperErrorsTotal.Add(float64(result.Errors))
	sweeperDurationSeconds.Observe(result.Duration.Seconds())

	if len(tasks) > 0 {
		s.logger.Info("Проход чистильщика завершён",
			slog.Int("deleted", result.Deleted),
			slog.Int("gone", result.Gone),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
