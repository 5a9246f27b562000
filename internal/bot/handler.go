// Пакет bot — приём и обработка обновлений Telegram.
//
// handler.go — маршрутизация одного обновления: поиск в групповом
// чате с доставкой выдачи в личку, навигация по кнопкам,
// индексация каналов, административные команды.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aaghaz370/stroomabot/internal/config"
	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/repository"
	"github.com/aaghaz370/stroomabot/internal/service"
	"github.com/aaghaz370/stroomabot/internal/tgclient"
	"github.com/aaghaz370/stroomabot/internal/token"
)

// Тексты, видимые пользователю при сбоях. Без технических деталей.
const (
	textStoreDown    = "Каталог временно недоступен, попробуйте позже."
	textDeliveryDown = "Не получилось отправить сообщение, попробуйте позже."
	textStaleButton  = "Кнопка устарела, повторите поиск."
	textBanned       = "Доступ к боту заблокирован."
	textStart        = "Привет! Напишите название фильма в групповом чате — я пришлю результаты в личку."
)

// Prometheus-метрики обработки обновлений.
var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Количество обработанных обновлений по типам.",
	}, []string{"type"})
	handlerErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_handler_errors_total",
		Help: "Количество ошибок обработки обновлений.",
	})
)

// Deliverer — часть клиента Bot API, нужная обработчику.
type Deliverer interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *tgclient.InlineKeyboardMarkup) (*tgclient.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, keyboard *tgclient.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Handler — обработчик обновлений.
type Handler struct {
	cfg      *config.Config
	delivery Deliverer
	search   *service.SearchService
	fuzzy    *service.FuzzyService
	render   *service.Renderer
	indexer  *service.IndexerService
	users    repository.UserRepository
	queue    repository.DeletionRepository
	files    repository.FileRepository
	channels repository.ChannelRepository
	logger   *slog.Logger
}

// NewHandler создаёт обработчик обновлений.
func NewHandler(
	cfg *config.Config,
	delivery Deliverer,
	search *service.SearchService,
	fuzzy *service.FuzzyService,
	render *service.Renderer,
	indexer *service.IndexerService,
	users repository.UserRepository,
	queue repository.DeletionRepository,
	files repository.FileRepository,
	channels repository.ChannelRepository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		delivery: delivery,
		search:   search,
		fuzzy:    fuzzy,
		render:   render,
		indexer:  indexer,
		users:    users,
		queue:    queue,
		files:    files,
		channels: channels,
		logger:   logger.With(slog.String("component", "handler")),
	}
}

// log возвращает логгер обновления из контекста (несёт correlation_id,
// проставленный диспетчером) или базовый логгер обработчика.
func (h *Handler) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return h.logger
}

// HandleUpdate маршрутизирует одно обновление.
// Ошибки логируются и учитываются в метриках, но не прерывают
// обработку остальных обновлений.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgclient.Update) {
	var err error
	switch {
	case upd.ChannelPost != nil:
		updatesTotal.WithLabelValues("channel_post").Inc()
		err = h.handleChannelPost(ctx, upd.ChannelPost)
	case upd.CallbackQuery != nil:
		updatesTotal.WithLabelValues("callback_query").Inc()
		err = h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		updatesTotal.WithLabelValues("message").Inc()
		err = h.handleMessage(ctx, upd.Message)
	default:
		updatesTotal.WithLabelValues("other").Inc()
	}

	if err != nil {
		handlerErrorsTotal.Inc()
		h.log(ctx).Error("Ошибка обработки обновления",
			slog.Int64("update_id", upd.UpdateID),
			slog.String("error", err.Error()),
		)
	}
}

// handleChannelPost индексирует медиафайл из сообщения канала.
func (h *Handler) handleChannelPost(ctx context.Context, msg *tgclient.Message) error {
	name, size := mediaAttrs(msg)
	if name == "" && size == 0 {
		return nil
	}
	return h.indexer.IndexFile(ctx, msg.Chat.ID, msg.MessageID, name, size)
}

// mediaAttrs возвращает имя и размер медиафайла сообщения.
func mediaAttrs(msg *tgclient.Message) (string, int64) {
	switch {
	case msg.Document != nil:
		return msg.Document.FileName, msg.Document.FileSize
	case msg.Video != nil:
		return msg.Video.FileName, msg.Video.FileSize
	case msg.Audio != nil:
		return msg.Audio.FileName, msg.Audio.FileSize
	}
	return "", 0
}

// handleMessage обрабатывает входящее сообщение.
// Первая проверка — блокировка: забаненный пользователь получает
// отказ до любых других действий.
func (h *Handler) handleMessage(ctx context.Context, msg *tgclient.Message) error {
	if msg.From == nil || msg.From.IsBot {
		return nil
	}

	banned, err := h.users.IsBanned(ctx, msg.From.ID)
	if err != nil {
		return fmt.Errorf("проверка блокировки: %w", err)
	}
	if banned {
		h.log(ctx).Debug("Отказ заблокированному пользователю",
			slog.Int64("user_id", msg.From.ID),
		)
		_, err := h.delivery.SendMessage(ctx, msg.Chat.ID, textBanned, nil)
		return err
	}

	if err := h.users.Touch(ctx, msg.From.ID); err != nil {
		h.log(ctx).Warn("Не удалось зарегистрировать пользователя",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		return h.handleCommand(ctx, msg, text)
	}

	// Поисковые запросы принимаются только в групповом чате
	if msg.Chat.ID != h.cfg.GroupChatID {
		return nil
	}

	return h.handleSearch(ctx, msg.From.ID, text)
}

// handleSearch выполняет поиск и доставляет выдачу в личку.
// Пустая выдача — fuzzy-подсказки; нет и подсказок — текст об отсутствии.
func (h *Handler) handleSearch(ctx context.Context, userID int64, query string) error {
	res, err := h.search.Search(ctx, query, nil, 1)
	if err != nil {
		return h.notifyFailure(ctx, userID, err)
	}

	var text string
	var kb model.Keyboard

	if res.Total > 0 {
		text, kb = h.render.Results(res)
	} else {
		suggestions, err := h.fuzzy.Suggest(ctx, query)
		if err != nil {
			return h.notifyFailure(ctx, userID, err)
		}
		if len(suggestions) > 0 {
			text, kb = h.render.Suggestions(query, suggestions)
		} else {
			text = h.render.NoResults(query)
		}
	}

	sent, err := h.delivery.SendMessage(ctx, userID, text, toMarkup(kb))
	if err != nil {
		return fmt.Errorf("доставка выдачи: %w", err)
	}

	// Доставленная выдача живёт ограниченное время
	task := &model.DeletionTask{
		ChatID:    userID,
		MessageID: sent.MessageID,
		DeleteAt:  time.Now().UTC().Add(h.cfg.DeleteDelay),
	}
	if err := h.queue.Schedule(ctx, task); err != nil {
		h.log(ctx).Error("Не удалось поставить задачу удаления",
			slog.Int64("chat_id", userID),
			slog.Int64("message_id", sent.MessageID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// handleCallback обрабатывает нажатие inline-кнопки.
// Некорректный токен — не сбой: пользователю показывается просьба
// повторить поиск, обработка продолжается.
func (h *Handler) handleCallback(ctx context.Context, cb *tgclient.CallbackQuery) error {
	if cb.Data == token.Noop {
		return h.delivery.AnswerCallbackQuery(ctx, cb.ID, "")
	}

	banned, err := h.users.IsBanned(ctx, cb.From.ID)
	if err != nil {
		return fmt.Errorf("проверка блокировки: %w", err)
	}
	if banned {
		return h.delivery.AnswerCallbackQuery(ctx, cb.ID, textBanned)
	}

	st, err := token.Decode(cb.Data)
	if err != nil {
		h.log(ctx).Warn("Некорректный навигационный токен",
			slog.Int64("user_id", cb.From.ID),
			slog.String("data", cb.Data),
		)
		return h.delivery.AnswerCallbackQuery(ctx, cb.ID, textStaleButton)
	}

	if cb.Message == nil {
		return h.delivery.AnswerCallbackQuery(ctx, cb.ID, textStaleButton)
	}
	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID

	var text string
	var kb model.Keyboard

	switch st.Action {
	case token.ActionResults, token.ActionBack:
		res, err := h.search.Search(ctx, st.Query, nil, st.Page)
		if err != nil {
			return h.answerFailure(ctx, cb.ID, err)
		}
		text, kb = h.render.Results(res)

	case token.ActionFilterMenu:
		text, kb = h.render.FilterMenu(st.Kind, st.Query, st.Page)

	case token.ActionSetFilter:
		// Применение фильтра всегда начинает с первой страницы
		res, err := h.search.Search(ctx, st.Query, st.Filters, 1)
		if err != nil {
			return h.answerFailure(ctx, cb.ID, err)
		}
		text, kb = h.render.Results(res)

	case token.ActionFuzzyPick:
		// Подсказка открывает новый поиск без фильтров
		res, err := h.search.Search(ctx, st.Query, nil, 1)
		if err != nil {
			return h.answerFailure(ctx, cb.ID, err)
		}
		text, kb = h.render.Results(res)
	}

	if err := h.delivery.EditMessageText(ctx, chatID, messageID, text, toMarkup(kb)); err != nil {
		// Контент не изменился (повторное нажатие) — не сбой
		if tgclient.IsGone(err) {
			return h.delivery.AnswerCallbackQuery(ctx, cb.ID, "")
		}
		return fmt.Errorf("правка сообщения: %w", err)
	}

	return h.delivery.AnswerCallbackQuery(ctx, cb.ID, "")
}

// handleCommand обрабатывает команды.
// Административные команды доступны только администраторам,
// для остальных молча игнорируются.
func (h *Handler) handleCommand(ctx context.Context, msg *tgclient.Message, text string) error {
	parts := strings.Fields(text)
	// Срезаем @username: в группах команды приходят как /cmd@bot
	cmd := strings.SplitN(parts[0], "@", 2)[0]
	args := parts[1:]

	if cmd == "/start" {
		_, err := h.delivery.SendMessage(ctx, msg.Chat.ID, textStart, nil)
		return err
	}

	if !h.cfg.IsAdmin(msg.From.ID) {
		h.log(ctx).Debug("Команда не-администратора проигнорирована",
			slog.Int64("user_id", msg.From.ID),
			slog.String("command", cmd),
		)
		return nil
	}

	switch cmd {
	case "/ban":
		return h.cmdSetBan(ctx, msg.Chat.ID, args, true)
	case "/unban":
		return h.cmdSetBan(ctx, msg.Chat.ID, args, false)
	case "/broadcast":
		return h.cmdBroadcast(ctx, msg.Chat.ID, strings.TrimSpace(strings.TrimPrefix(text, parts[0])))
	case "/addchannel":
		return h.cmdAddChannel(ctx, msg.Chat.ID, args)
	case "/stats":
		return h.cmdStats(ctx, msg.Chat.ID)
	}
	return nil
}

// cmdSetBan выставляет или снимает блокировку пользователя.
func (h *Handler) cmdSetBan(ctx context.Context, chatID int64, args []string, banned bool) error {
	if len(args) != 1 {
		_, err := h.delivery.SendMessage(ctx, chatID, "Использование: /ban <user_id>", nil)
		return err
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := h.delivery.SendMessage(ctx, chatID, "Некорректный идентификатор пользователя.", nil)
		return err
	}

	// Блокировка работает и для ещё не видевшихся пользователей (upsert),
	// а снимать блокировку с неизвестного пользователя не с чего
	if !banned {
		if _, err := h.users.Get(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				_, err := h.delivery.SendMessage(ctx, chatID,
					fmt.Sprintf("Пользователь %d не найден.", userID), nil)
				return err
			}
			return h.notifyFailure(ctx, chatID, err)
		}
	}

	if err := h.users.SetBanned(ctx, userID, banned); err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}

	reply := fmt.Sprintf("Пользователь %d заблокирован.", userID)
	if !banned {
		reply = fmt.Sprintf("Пользователь %d разблокирован.", userID)
	}
	_, err = h.delivery.SendMessage(ctx, chatID, reply, nil)
	return err
}

// cmdBroadcast рассылает текст всем известным пользователям.
// Ошибка доставки одному получателю не прерывает рассылку.
func (h *Handler) cmdBroadcast(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		_, err := h.delivery.SendMessage(ctx, chatID, "Использование: /broadcast <текст>", nil)
		return err
	}

	ids, err := h.users.AllIDs(ctx)
	if err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}

	sent, failed := 0, 0
	for _, id := range ids {
		if _, err := h.delivery.SendMessage(ctx, id, text, nil); err != nil {
			failed++
			h.log(ctx).Warn("Рассылка: получатель недоступен",
				slog.Int64("user_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
	}

	report := fmt.Sprintf("Рассылка завершена: доставлено %d, не доставлено %d.", sent, failed)
	_, err = h.delivery.SendMessage(ctx, chatID, report, nil)
	return err
}

// cmdAddChannel регистрирует канал-источник индексации.
func (h *Handler) cmdAddChannel(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 1 {
		_, err := h.delivery.SendMessage(ctx, chatID, "Использование: /addchannel <channel_id>", nil)
		return err
	}
	channelID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := h.delivery.SendMessage(ctx, chatID, "Некорректный идентификатор канала.", nil)
		return err
	}

	if err := h.indexer.RegisterChannel(ctx, channelID); err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}

	_, err = h.delivery.SendMessage(ctx, chatID,
		fmt.Sprintf("Канал %d зарегистрирован как источник.", channelID), nil)
	return err
}

// cmdStats отправляет сводку по каталогу.
func (h *Handler) cmdStats(ctx context.Context, chatID int64) error {
	files, err := h.files.Count(ctx)
	if err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}
	users, err := h.users.Count(ctx)
	if err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}
	channels, err := h.channels.Count(ctx)
	if err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}
	pending, err := h.queue.Count(ctx)
	if err != nil {
		return h.notifyFailure(ctx, chatID, err)
	}

	report := fmt.Sprintf(
		"Файлов в каталоге: %d\nПользователей: %d\nКаналов-источников: %d\nОжидают удаления: %d",
		files, users, channels, pending,
	)
	_, err = h.delivery.SendMessage(ctx, chatID, report, nil)
	return err
}

// notifyFailure показывает пользователю общий текст сбоя.
// Исходная ошибка возвращается для логирования.
func (h *Handler) notifyFailure(ctx context.Context, chatID int64, cause error) error {
	text := textStoreDown
	if errors.Is(cause, tgclient.ErrDeliveryUnavailable) {
		text = textDeliveryDown
	}
	if _, err := h.delivery.SendMessage(ctx, chatID, text, nil); err != nil {
		return fmt.Errorf("уведомление о сбое: %w (исходная ошибка: %v)", err, cause)
	}
	return cause
}

// answerFailure показывает текст сбоя во всплывающем уведомлении callback.
func (h *Handler) answerFailure(ctx context.Context, callbackID string, cause error) error {
	if err := h.delivery.AnswerCallbackQuery(ctx, callbackID, textStoreDown); err != nil {
		return fmt.Errorf("уведомление о сбое: %w (исходная ошибка: %v)", err, cause)
	}
	return cause
}

// toMarkup преобразует доменную клавиатуру в проводной формат Bot API.
func toMarkup(kb model.Keyboard) *tgclient.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	markup := &tgclient.InlineKeyboardMarkup{}
	for _, row := range kb {
		var btns []tgclient.InlineKeyboardButton
		for _, b := range row {
			btns = append(btns, tgclient.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, btns)
	}
	return markup
}
