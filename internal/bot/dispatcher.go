// dispatcher.go — цикл long-poll и пул обработки обновлений.
//
// Один диспетчер читает getUpdates и раздаёт обновления пулу
// горутин с ограниченным параллелизмом (errgroup.SetLimit).
// Порядок подтверждения offset гарантирует at-least-once:
// обновления, не обработанные до падения, придут снова.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aaghaz370/stroomabot/internal/tgclient"
)

// UpdateSource — часть клиента Bot API, нужная диспетчеру.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgclient.Update, error)
}

// Dispatcher — цикл приёма и раздачи обновлений.
type Dispatcher struct {
	source      UpdateSource
	handler     *Handler
	workers     int
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewDispatcher создаёт диспетчер.
// workers — максимум одновременно обрабатываемых обновлений.
func NewDispatcher(
	source UpdateSource,
	handler *Handler,
	workers int,
	pollTimeout time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		source:      source,
		handler:     handler,
		workers:     workers,
		pollTimeout: pollTimeout,
		logger:      logger.With(slog.String("component", "dispatcher")),
	}
}

// Run запускает цикл long-poll. Блокирует до отмены контекста.
// Ошибки poll не фатальны: пауза и повтор.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Диспетчер запущен",
		slog.Int("workers", d.workers),
		slog.String("poll_timeout", d.pollTimeout.String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			// Дожидаемся обновлений в обработке
			_ = g.Wait()
			d.logger.Info("Диспетчер остановлен")
			return ctx.Err()
		default:
		}

		updates, err := d.source.GetUpdates(ctx, offset, d.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				_ = g.Wait()
				d.logger.Info("Диспетчер остановлен")
				return ctx.Err()
			}
			d.logger.Error("Ошибка получения обновлений",
				slog.String("error", err.Error()),
			)
			// Пауза перед повтором, чтобы не молотить лежащий API
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}

			upd := upd
			corrID := uuid.NewString()
			g.Go(func() error {
				start := time.Now()
				uctx := withLogger(gctx, d.logger.With(slog.String("correlation_id", corrID)))
				d.handler.HandleUpdate(uctx, upd)
				d.logger.Debug("Обновление обработано",
					slog.Int64("update_id", upd.UpdateID),
					slog.String("correlation_id", corrID),
					slog.Duration("duration", time.Since(start)),
				)
				return nil
			})
		}
	}
}

// ctxKey — ключ логгера в контексте.
type ctxKey struct{}

// withLogger кладёт логгер с correlation_id в контекст обновления.
// Обработчик достаёт его через Handler.log.
func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}
