package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aaghaz370/stroomabot/internal/config"
	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/repository"
	"github.com/aaghaz370/stroomabot/internal/service"
	"github.com/aaghaz370/stroomabot/internal/tgclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- In-memory репозитории ---

type memFileRepo struct {
	mu    sync.Mutex
	files []*model.FileRecord
}

func (m *memFileRepo) Upsert(ctx context.Context, f *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, old := range m.files {
		if old.ChannelID == f.ChannelID && old.MessageID == f.MessageID {
			old.FileName, old.FileSize = f.FileName, f.FileSize
			old.Quality, old.Year, old.Languages, old.Season = f.Quality, f.Year, f.Languages, f.Season
			return nil
		}
	}
	f.ID = int64(len(m.files) + 1)
	m.files = append(m.files, f)
	return nil
}

func (m *memFileRepo) Search(ctx context.Context, params repository.SearchParams) ([]*model.FileRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*model.FileRecord
	for _, f := range m.files {
		if params.Query != "" && !strings.Contains(strings.ToLower(f.FileName), strings.ToLower(params.Query)) {
			continue
		}
		if params.Quality != nil && f.Quality != *params.Quality {
			continue
		}
		if params.Year != nil && (f.Year == nil || *f.Year != *params.Year) {
			continue
		}
		if params.Season != nil && (f.Season == nil || *f.Season != *params.Season) {
			continue
		}
		if params.Language != nil {
			found := false
			for _, l := range f.Languages {
				if l == *params.Language {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, f)
	}

	total := len(matched)
	if params.Offset >= total {
		return nil, total, nil
	}
	end := params.Offset + params.Limit
	if end > total {
		end = total
	}
	return matched[params.Offset:end], total, nil
}

func (m *memFileRepo) AllNames(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, f := range m.files {
		names = append(names, f.FileName)
	}
	return names, nil
}

func (m *memFileRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files), nil
}

type memUserRepo struct {
	mu     sync.Mutex
	banned map[int64]bool
	known  map[int64]bool
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{banned: map[int64]bool{}, known: map[int64]bool{}}
}

func (m *memUserRepo) Touch(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[userID] = true
	return nil
}

func (m *memUserRepo) IsBanned(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banned[userID], nil
}

func (m *memUserRepo) SetBanned(ctx context.Context, userID int64, banned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned[userID] = banned
	m.known[userID] = true
	return nil
}

func (m *memUserRepo) AllIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.known {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memUserRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.known), nil
}

func (m *memUserRepo) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[userID] {
		return nil, repository.ErrNotFound
	}
	return &model.UserRecord{UserID: userID, Banned: m.banned[userID]}, nil
}

type memChannelRepo struct {
	mu    sync.Mutex
	known map[int64]bool
}

func newMemChannelRepo() *memChannelRepo {
	return &memChannelRepo{known: map[int64]bool{}}
}

func (m *memChannelRepo) Add(ctx context.Context, channelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[channelID] = true
	return nil
}

func (m *memChannelRepo) Exists(ctx context.Context, channelID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known[channelID], nil
}

func (m *memChannelRepo) List(ctx context.Context) ([]*model.SourceChannel, error) {
	return nil, nil
}

func (m *memChannelRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.known), nil
}

type memQueue struct {
	mu    sync.Mutex
	tasks []*model.DeletionTask
}

func (m *memQueue) Schedule(ctx context.Context, task *model.DeletionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ChatID == task.ChatID && t.MessageID == task.MessageID {
			t.DeleteAt = task.DeleteAt
			return nil
		}
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memQueue) Due(ctx context.Context, now time.Time) ([]*model.DeletionTask, error) {
	return nil, nil
}

func (m *memQueue) Remove(ctx context.Context, chatID, messageID int64) error {
	return nil
}

func (m *memQueue) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks), nil
}

// --- Мок доставки ---

type sentMsg struct {
	chatID int64
	text   string
	kb     *tgclient.InlineKeyboardMarkup
}

type editMsg struct {
	chatID    int64
	messageID int64
	text      string
	kb        *tgclient.InlineKeyboardMarkup
}

type mockDelivery struct {
	mu      sync.Mutex
	sent    []sentMsg
	edits   []editMsg
	answers []string
	sendErr func(chatID int64) error
	nextID  int64
}

func (m *mockDelivery) SendMessage(ctx context.Context, chatID int64, text string, kb *tgclient.InlineKeyboardMarkup) (*tgclient.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		if err := m.sendErr(chatID); err != nil {
			return nil, err
		}
	}
	m.nextID++
	m.sent = append(m.sent, sentMsg{chatID: chatID, text: text, kb: kb})
	return &tgclient.Message{MessageID: m.nextID, Chat: tgclient.Chat{ID: chatID}}, nil
}

func (m *mockDelivery) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, kb *tgclient.InlineKeyboardMarkup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, editMsg{chatID: chatID, messageID: messageID, text: text, kb: kb})
	return nil
}

func (m *mockDelivery) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	return nil
}

// --- Фикстура ---

type fixture struct {
	handler  *Handler
	delivery *mockDelivery
	files    *memFileRepo
	users    *memUserRepo
	channels *memChannelRepo
	queue    *memQueue
}

func newFixture(t *testing.T, catalog []string) *fixture {
	t.Helper()

	files := &memFileRepo{}
	for i, name := range catalog {
		files.Upsert(context.Background(), &model.FileRecord{
			ChannelID: -100,
			MessageID: int64(i + 1),
			FileName:  name,
			FileSize:  734003200,
			Quality:   "720p",
			Languages: []string{"Hindi"},
		})
	}

	users := newMemUserRepo()
	channels := newMemChannelRepo()
	queue := &memQueue{}
	delivery := &mockDelivery{}
	logger := testLogger()

	cfg := &config.Config{
		GroupChatID: -100500,
		AdminIDs:    []int64{1},
		DeleteDelay: 15 * time.Minute,
	}

	cache := service.NewCacheService(4, time.Minute)
	search := service.NewSearchService(files, 10, time.Second, logger)
	fuzzy := service.NewFuzzyService(files, cache, 60, 5, time.Second, logger)
	render := service.NewRenderer(10)
	indexer := service.NewIndexerService(files, channels, cache, time.Second, logger)

	h := NewHandler(cfg, delivery, search, fuzzy, render, indexer, users, queue, files, channels, logger)

	return &fixture{
		handler:  h,
		delivery: delivery,
		files:    files,
		users:    users,
		channels: channels,
		queue:    queue,
	}
}

func groupMessage(userID int64, text string) tgclient.Update {
	return tgclient.Update{
		UpdateID: 1,
		Message: &tgclient.Message{
			MessageID: 100,
			From:      &tgclient.User{ID: userID},
			Chat:      tgclient.Chat{ID: -100500, Type: "supergroup"},
			Text:      text,
		},
	}
}

func privateMessage(userID int64, text string) tgclient.Update {
	return tgclient.Update{
		UpdateID: 1,
		Message: &tgclient.Message{
			MessageID: 100,
			From:      &tgclient.User{ID: userID},
			Chat:      tgclient.Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}

// TestGroupSearch_DeliversToDM проверяет основной сценарий: запрос в
// группе, выдача в личке, постановка задачи удаления.
func TestGroupSearch_DeliversToDM(t *testing.T) {
	fx := newFixture(t, []string{"Movie.2019.720p.Hindi.mkv", "Other.Show.mkv"})

	fx.handler.HandleUpdate(context.Background(), groupMessage(7, "Movie"))

	if len(fx.delivery.sent) != 1 {
		t.Fatalf("отправлено %d сообщений, ожидалось 1", len(fx.delivery.sent))
	}
	msg := fx.delivery.sent[0]
	if msg.chatID != 7 {
		t.Errorf("выдача доставлена в чат %d, ожидалась личка 7", msg.chatID)
	}
	if !strings.Contains(msg.text, "Movie.2019.720p.Hindi.mkv") {
		t.Errorf("text = %q, ожидалось имя файла", msg.text)
	}
	if msg.kb == nil || len(msg.kb.InlineKeyboard) == 0 {
		t.Error("ожидалась inline-клавиатура")
	}

	// Задача удаления поставлена на доставленное сообщение
	count, _ := fx.queue.Count(context.Background())
	if count != 1 {
		t.Fatalf("в очереди %d задач, ожидалась 1", count)
	}
	task := fx.queue.tasks[0]
	if task.ChatID != 7 {
		t.Errorf("задача для чата %d, ожидался 7", task.ChatID)
	}
	if until := time.Until(task.DeleteAt); until < 14*time.Minute || until > 16*time.Minute {
		t.Errorf("срок удаления через %v, ожидались ~15m", until)
	}
}

// TestBannedUser_Rejected проверяет, что блокировка проверяется
// до всего остального: отказ вместо выдачи, ничего не планируется.
func TestBannedUser_Rejected(t *testing.T) {
	fx := newFixture(t, []string{"Movie.mkv"})
	fx.users.SetBanned(context.Background(), 7, true)

	fx.handler.HandleUpdate(context.Background(), groupMessage(7, "Movie"))

	if len(fx.delivery.sent) != 1 {
		t.Fatalf("отправлено %d сообщений, ожидался один отказ", len(fx.delivery.sent))
	}
	if fx.delivery.sent[0].text != textBanned {
		t.Errorf("text = %q, ожидался отказ", fx.delivery.sent[0].text)
	}
	if fx.delivery.sent[0].kb != nil {
		t.Error("отказ не должен содержать клавиатуру")
	}
	if n := len(fx.queue.tasks); n != 0 {
		t.Errorf("в очереди %d задач, ожидалось 0", n)
	}
}

// TestPrivateQuery_Ignored проверяет, что поиск принимается
// только в групповом чате.
func TestPrivateQuery_Ignored(t *testing.T) {
	fx := newFixture(t, []string{"Movie.mkv"})

	fx.handler.HandleUpdate(context.Background(), privateMessage(7, "Movie"))

	if len(fx.delivery.sent) != 0 {
		t.Errorf("отправлено %d сообщений на личный запрос, ожидалось 0", len(fx.delivery.sent))
	}
}

// TestGroupSearch_FuzzySuggestions проверяет подсказки при пустой выдаче.
func TestGroupSearch_FuzzySuggestions(t *testing.T) {
	fx := newFixture(t, []string{"Movie.2019.720p.Hindi.mkv"})

	fx.handler.HandleUpdate(context.Background(), groupMessage(7, "Moive"))

	if len(fx.delivery.sent) != 1 {
		t.Fatalf("отправлено %d сообщений, ожидалось 1", len(fx.delivery.sent))
	}
	msg := fx.delivery.sent[0]
	if !strings.Contains(msg.text, "Возможно, вы искали") {
		t.Errorf("text = %q, ожидались подсказки", msg.text)
	}
	if msg.kb == nil || len(msg.kb.InlineKeyboard) != 1 {
		t.Errorf("ожидалась клавиатура с одной подсказкой: %+v", msg.kb)
	}
}

// TestCallback_Pagination проверяет правку сообщения при навигации.
func TestCallback_Pagination(t *testing.T) {
	var catalog []string
	for i := 0; i < 15; i++ {
		catalog = append(catalog, "Movie."+strings.Repeat("x", i+1)+".mkv")
	}
	fx := newFixture(t, catalog)

	cb := tgclient.Update{
		UpdateID: 2,
		CallbackQuery: &tgclient.CallbackQuery{
			ID:   "cb1",
			From: tgclient.User{ID: 7},
			Message: &tgclient.Message{
				MessageID: 55,
				Chat:      tgclient.Chat{ID: 7, Type: "private"},
			},
			Data: "res:2:Movie",
		},
	}
	fx.handler.HandleUpdate(context.Background(), cb)

	if len(fx.delivery.edits) != 1 {
		t.Fatalf("правок %d, ожидалась 1", len(fx.delivery.edits))
	}
	edit := fx.delivery.edits[0]
	if edit.chatID != 7 || edit.messageID != 55 {
		t.Errorf("правка %d/%d, ожидалась 7/55", edit.chatID, edit.messageID)
	}
	if !strings.Contains(edit.text, "11. ") {
		t.Errorf("text = %q, ожидалась вторая страница", edit.text)
	}
	if len(fx.delivery.answers) != 1 {
		t.Errorf("callback не подтверждён")
	}
}

// TestCallback_SetFilter проверяет применение фильтра с первой страницы.
func TestCallback_SetFilter(t *testing.T) {
	fx := newFixture(t, nil)
	y := 2019
	fx.files.Upsert(context.Background(), &model.FileRecord{
		ChannelID: -1, MessageID: 1, FileName: "Movie.2019.720p.Hindi.mkv",
		Quality: "720p", Year: &y, Languages: []string{"Hindi"},
	})
	fx.files.Upsert(context.Background(), &model.FileRecord{
		ChannelID: -1, MessageID: 2, FileName: "Movie.2021.1080p.Tamil.mkv",
		Quality: "1080p", Languages: []string{"Tamil"},
	})

	cb := tgclient.Update{
		CallbackQuery: &tgclient.CallbackQuery{
			ID:      "cb2",
			From:    tgclient.User{ID: 7},
			Message: &tgclient.Message{MessageID: 55, Chat: tgclient.Chat{ID: 7}},
			Data:    "set:quality:720p:3:Movie",
		},
	}
	fx.handler.HandleUpdate(context.Background(), cb)

	if len(fx.delivery.edits) != 1 {
		t.Fatalf("правок %d, ожидалась 1", len(fx.delivery.edits))
	}
	text := fx.delivery.edits[0].text
	if !strings.Contains(text, "Movie.2019.720p.Hindi.mkv") {
		t.Errorf("text = %q, ожидался отфильтрованный файл", text)
	}
	if strings.Contains(text, "1080p.Tamil") {
		t.Errorf("text = %q, файл другого качества не должен попасть", text)
	}
}

// TestCallback_Malformed проверяет мягкую реакцию на мусорный токен.
func TestCallback_Malformed(t *testing.T) {
	fx := newFixture(t, nil)

	cb := tgclient.Update{
		CallbackQuery: &tgclient.CallbackQuery{
			ID:      "cb3",
			From:    tgclient.User{ID: 7},
			Message: &tgclient.Message{MessageID: 55, Chat: tgclient.Chat{ID: 7}},
			Data:    "garbage:::",
		},
	}
	fx.handler.HandleUpdate(context.Background(), cb)

	if len(fx.delivery.edits) != 0 {
		t.Errorf("правок %d на мусорный токен, ожидалось 0", len(fx.delivery.edits))
	}
	if len(fx.delivery.answers) != 1 || fx.delivery.answers[0] != textStaleButton {
		t.Errorf("answers = %v, ожидалось уведомление об устаревшей кнопке", fx.delivery.answers)
	}
}

// TestCallback_Noop проверяет, что индикатор страницы просто подтверждается.
func TestCallback_Noop(t *testing.T) {
	fx := newFixture(t, nil)

	cb := tgclient.Update{
		CallbackQuery: &tgclient.CallbackQuery{
			ID:   "cb4",
			From: tgclient.User{ID: 7},
			Data: "noop",
		},
	}
	fx.handler.HandleUpdate(context.Background(), cb)

	if len(fx.delivery.answers) != 1 {
		t.Errorf("answers = %v, ожидалось одно подтверждение", fx.delivery.answers)
	}
	if len(fx.delivery.edits) != 0 || len(fx.delivery.sent) != 0 {
		t.Error("noop не должен менять сообщения")
	}
}

// TestAdminCommands проверяет блокировку, разблокировку и права доступа.
func TestAdminCommands(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	// Не-администратор: команда игнорируется
	fx.handler.HandleUpdate(ctx, privateMessage(7, "/ban 99"))
	if banned, _ := fx.users.IsBanned(ctx, 99); banned {
		t.Error("не-администратор смог заблокировать пользователя")
	}

	// Администратор (id 1 из фикстуры)
	fx.handler.HandleUpdate(ctx, privateMessage(1, "/ban 99"))
	if banned, _ := fx.users.IsBanned(ctx, 99); !banned {
		t.Error("/ban не заблокировал пользователя")
	}

	fx.handler.HandleUpdate(ctx, privateMessage(1, "/unban 99"))
	if banned, _ := fx.users.IsBanned(ctx, 99); banned {
		t.Error("/unban не снял блокировку")
	}
}

// TestUnbanUnknownUser проверяет, что разблокировка неизвестного
// пользователя сообщает об отсутствии записи, а не создаёт её.
func TestUnbanUnknownUser(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.handler.HandleUpdate(ctx, privateMessage(1, "/unban 555"))

	last := fx.delivery.sent[len(fx.delivery.sent)-1]
	if !strings.Contains(last.text, "не найден") {
		t.Errorf("ответ = %q, ожидалось сообщение об отсутствии пользователя", last.text)
	}
	if _, err := fx.users.Get(ctx, 555); err == nil {
		t.Error("разблокировка создала запись неизвестного пользователя")
	}
}

// TestAddChannelCommand проверяет регистрацию канала и последующую индексацию.
func TestAddChannelCommand(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.handler.HandleUpdate(ctx, privateMessage(1, "/addchannel -100777"))

	post := tgclient.Update{
		ChannelPost: &tgclient.Message{
			MessageID: 5,
			Chat:      tgclient.Chat{ID: -100777, Type: "channel"},
			Document:  &tgclient.Document{FileName: "New.2024.1080p.mkv", FileSize: 42},
		},
	}
	fx.handler.HandleUpdate(ctx, post)

	count, _ := fx.files.Count(ctx)
	if count != 1 {
		t.Errorf("в каталоге %d файлов, ожидался 1", count)
	}
}

// TestBroadcast_ContinuesPastFailures проверяет, что рассылка
// не прерывается на недоступном получателе.
func TestBroadcast_ContinuesPastFailures(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.users.Touch(ctx, 10)
	fx.users.Touch(ctx, 11)
	fx.users.Touch(ctx, 12)

	fx.delivery.sendErr = func(chatID int64) error {
		if chatID == 11 {
			return &tgclient.APIError{Method: "sendMessage", Code: 403, Description: "blocked"}
		}
		return nil
	}

	fx.handler.HandleUpdate(ctx, privateMessage(1, "/broadcast Всем привет"))

	var delivered int
	var report string
	for _, s := range fx.delivery.sent {
		if s.text == "Всем привет" {
			delivered++
		}
		if strings.HasPrefix(s.text, "Рассылка завершена") {
			report = s.text
		}
	}
	// Получатели: 10, 12 и сам администратор; 11 недоступен
	if delivered != 3 {
		t.Errorf("доставлено %d, ожидалось 3", delivered)
	}
	if !strings.Contains(report, "доставлено 3") || !strings.Contains(report, "не доставлено 1") {
		t.Errorf("отчёт = %q", report)
	}
}

// TestStatsCommand проверяет сводку.
func TestStatsCommand(t *testing.T) {
	fx := newFixture(t, []string{"A.mkv", "B.mkv"})
	ctx := context.Background()
	fx.channels.Add(ctx, -100)

	fx.handler.HandleUpdate(ctx, privateMessage(1, "/stats"))

	var report string
	for _, s := range fx.delivery.sent {
		if strings.Contains(s.text, "Файлов в каталоге") {
			report = s.text
		}
	}
	if !strings.Contains(report, "Файлов в каталоге: 2") {
		t.Errorf("отчёт = %q, ожидались 2 файла", report)
	}
	if !strings.Contains(report, "Каналов-источников: 1") {
		t.Errorf("отчёт = %q, ожидался 1 канал", report)
	}
}
