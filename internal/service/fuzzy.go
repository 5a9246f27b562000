// fuzzy.go — подсказки при пустой выдаче поиска.
//
// Алгоритм: имена каталога и запрос нормализуются (нижний регистр,
// разбиение по не-буквенно-цифровым символам, сортировка токенов),
// после чего считается похожесть по Левенштейну. Для длинных имён
// берётся лучшее окно длины запроса: короткий запрос должен находить
// «Moive» в «Movie.2019.720p.Hindi.mkv», а не тонуть в хвосте имени.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aaghaz370/stroomabot/internal/repository"
)

// Prometheus-метрики fuzzy-подсказок.
var (
	fuzzyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_fuzzy_total",
		Help: "Общее количество fuzzy-поисков.",
	})
	fuzzySuggestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_fuzzy_suggested_total",
		Help: "Количество fuzzy-поисков, давших хотя бы одну подсказку.",
	})
)

// FuzzyService — подбор похожих имён каталога.
type FuzzyService struct {
	fileRepo  repository.FileRepository
	cache     *CacheService
	threshold int
	limit     int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFuzzyService создаёт сервис подсказок.
// threshold — минимальная похожесть (строго больше, шкала 0..100).
// limit — максимум подсказок.
func NewFuzzyService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	threshold int,
	limit int,
	timeout time.Duration,
	logger *slog.Logger,
) *FuzzyService {
	return &FuzzyService{
		fileRepo:  fileRepo,
		cache:     cache,
		threshold: threshold,
		limit:     limit,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "fuzzy_service")),
	}
}

// Suggest возвращает до limit имён каталога, похожих на запрос.
// Порядок: по убыванию похожести, при равенстве — порядок каталога.
// Пустой результат — валидный ответ, а не ошибка.
func (f *FuzzyService) Suggest(ctx context.Context, query string) ([]string, error) {
	fuzzyTotal.Inc()

	names, err := f.catalogNames(ctx)
	if err != nil {
		return nil, err
	}

	normQuery := normalize(query)
	if normQuery == "" {
		return nil, nil
	}

	type scored struct {
		name  string
		score int
		pos   int
	}

	var candidates []scored
	for i, name := range names {
		sc := similarity(normQuery, normalize(name))
		if sc > f.threshold {
			candidates = append(candidates, scored{name: name, score: sc, pos: i})
		}
	}

	// По убыванию похожести, при равенстве — порядок каталога
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].pos < candidates[j].pos
	})

	if len(candidates) > f.limit {
		candidates = candidates[:f.limit]
	}

	result := make([]string, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.name)
	}

	if len(result) > 0 {
		fuzzySuggestedTotal.Inc()
	}

	f.logger.Debug("Fuzzy-поиск выполнен",
		slog.String("query", query),
		slog.Int("suggestions", len(result)),
	)

	return result, nil
}

// catalogNames возвращает имена каталога: из кэша или из хранилища.
func (f *FuzzyService) catalogNames(ctx context.Context) ([]string, error) {
	if names, ok := f.cache.Names(); ok {
		return names, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	names, err := f.fileRepo.AllNames(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	f.cache.SetNames(names)
	return names, nil
}

// normalize приводит строку к канонической форме сравнения:
// нижний регистр, токены по не-буквенно-цифровым символам,
// сортировка токенов, склейка через пробел.
func normalize(s string) string {
	s = strings.ToLower(s)
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r >= 0x80)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// similarity возвращает похожесть двух нормализованных строк (0..100).
// Для пары разной длины короткая строка скользит окном по длинной:
// берётся максимум по всем окнам её длины.
func similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		a, b = b, a
		ra, rb = rb, ra
	}

	if len(ra) == len(rb) {
		return ratio(a, b)
	}

	best := 0
	// Окно скользит по рунам: имена с не-латинскими символами
	// не режутся посреди многобайтовой последовательности
	for i := 0; i+len(ra) <= len(rb); i++ {
		if r := ratio(a, string(rb[i:i+len(ra)])); r > best {
			best = r
		}
	}
	// Полное сравнение как нижняя граница (окно может резать по токену)
	if r := ratio(a, b); r > best {
		best = r
	}
	return best
}

// ratio — похожесть по Левенштейну: 100*(la+lb-d)/(la+lb).
func ratio(a, b string) int {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 * (la + lb - d) / (la + lb)
}
