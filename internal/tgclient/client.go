// Пакет tgclient — HTTP-клиент Telegram Bot API.
// Покрывает минимальный набор методов бота: long-poll getUpdates,
// отправка и правка сообщений, удаление, ответы на callback-запросы.
package tgclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDeliveryUnavailable — Bot API недоступен или вернул серверную ошибку.
// Вызывающий код показывает пользователю общий текст сбоя, без деталей.
var ErrDeliveryUnavailable = errors.New("служба доставки сообщений недоступна")

// Client — клиент Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// New создаёт клиент Bot API.
// baseURL — адрес API (в тестах подменяется на httptest-сервер).
// timeout — таймаут обычных запросов; long-poll использует собственный,
// превышающий таймаут ожидания getUpdates.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger.With(slog.String("component", "tg_client")),
	}
}

// apiResponse — обёртка всех ответов Bot API.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call выполняет POST-запрос метода Bot API и декодирует result в out.
// out == nil — результат не нужен.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация запроса %s: %w", method, err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s вернул %d", ErrDeliveryUnavailable, method, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: чтение ответа %s: %v", ErrDeliveryUnavailable, method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("%w: разбор ответа %s: %v", ErrDeliveryUnavailable, method, err)
	}

	if !apiResp.OK {
		return &APIError{Method: method, Code: apiResp.ErrorCode, Description: apiResp.Description}
	}

	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("разбор результата %s: %w", method, err)
		}
	}
	return nil
}

// APIError — ошибка уровня Bot API (ok=false в ответе).
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s: %d %s", e.Method, e.Code, e.Description)
}

// GetMe возвращает сведения о боте. Используется как проверка токена при старте.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates выполняет long-poll запрос обновлений.
// offset — идентификатор, с которого запрашивать (confirm предыдущих).
// Таймаут HTTP-клиента для этого запроса задаётся отдельно,
// больше серверного таймаута ожидания.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message", "channel_post", "callback_query"},
	}

	// Для long-poll — клиент без общего таймаута, дедлайн через контекст
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация getUpdates: %w", err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/getUpdates", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса getUpdates: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	pollClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := pollClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: getUpdates: %v", ErrDeliveryUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа getUpdates: %v", ErrDeliveryUnavailable, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: разбор ответа getUpdates: %v", ErrDeliveryUnavailable, err)
	}
	if !apiResp.OK {
		return nil, &APIError{Method: "getUpdates", Code: apiResp.ErrorCode, Description: apiResp.Description}
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("разбор обновлений: %w", err)
	}
	return updates, nil
}

// SendMessage отправляет текстовое сообщение с опциональной клавиатурой.
// Возвращает отправленное сообщение (его message_id нужен для
// постановки в очередь удаления).
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) (*Message, error) {
	payload := struct {
		ChatID      int64                 `json:"chat_id"`
		Text        string                `json:"text"`
		ParseMode   string                `json:"parse_mode,omitempty"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText заменяет текст и клавиатуру существующего сообщения.
// Навигация по выдаче правит сообщение на месте, не плодя новых.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, keyboard *InlineKeyboardMarkup) error {
	payload := struct {
		ChatID      int64                 `json:"chat_id"`
		MessageID   int64                 `json:"message_id"`
		Text        string                `json:"text"`
		ParseMode   string                `json:"parse_mode,omitempty"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	}

	return c.call(ctx, "editMessageText", payload, nil)
}

// DeleteMessage удаляет сообщение.
// Уже удалённое вручную сообщение (ошибка 400 от API) успехом не является,
// но и повторной попытки не требует — вызывающий код различает это
// через IsGone.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	payload := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int64 `json:"message_id"`
	}{ChatID: chatID, MessageID: messageID}

	return c.call(ctx, "deleteMessage", payload, nil)
}

// AnswerCallbackQuery подтверждает callback-запрос.
// text — всплывающее уведомление (пустая строка — просто снять «часики»).
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := struct {
		CallbackQueryID string `json:"callback_query_id"`
		Text            string `json:"text,omitempty"`
	}{CallbackQueryID: callbackID, Text: text}

	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// IsGone сообщает, что операция не удалась из-за отсутствия объекта
// (сообщение уже удалено, чат недоступен). Такие ошибки не ретраятся.
func IsGone(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden
	}
	return false
}

// ReadinessChecker — проверка доступности Bot API для health endpoint.
type ReadinessChecker struct {
	client *Client
}

// NewReadinessChecker создаёт проверку доступности Bot API.
func NewReadinessChecker(client *Client) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady выполняет getMe с коротким таймаутом.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := c.client.GetMe(ctx); err != nil {
		return "fail", fmt.Sprintf("Bot API недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
