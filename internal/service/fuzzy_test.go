package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aaghaz370/stroomabot/internal/repository"
)

var _ repository.FileRepository = (*mockFileRepo)(nil)

func newFuzzy(names []string, calls *int) *FuzzyService {
	repo := &mockFileRepo{
		allNamesFn: func(ctx context.Context, limit int) ([]string, error) {
			if calls != nil {
				*calls++
			}
			return names, nil
		},
	}
	cache := NewCacheService(4, time.Minute)
	return NewFuzzyService(repo, cache, 60, 5, time.Second, testLogger())
}

// TestSuggest_Typo проверяет опорный сценарий: опечатка в одном слове
// находит длинное имя с этим словом.
func TestSuggest_Typo(t *testing.T) {
	svc := newFuzzy([]string{
		"Movie.2019.720p.Hindi.mkv",
		"Completely.Different.Show.mkv",
	}, nil)

	got, err := svc.Suggest(context.Background(), "Moive")
	if err != nil {
		t.Fatalf("Suggest вернул ошибку: %v", err)
	}

	if len(got) != 1 || got[0] != "Movie.2019.720p.Hindi.mkv" {
		t.Errorf("Suggest = %v, ожидалось одно имя с Movie", got)
	}
}

// TestSuggest_ThresholdStrict проверяет строгость порога:
// совпадение ровно на пороге отбрасывается, ниже порога — тем более.
func TestSuggest_ThresholdStrict(t *testing.T) {
	// ratio("abcde", "axyzw") = 100*(10-4)/10 — ровно 60
	if sc := similarity("abcde", "axyzw"); sc != 60 {
		t.Fatalf("similarity = %d, ожидалось ровно 60", sc)
	}

	svc := newFuzzy([]string{"axyzw", "zz"}, nil)

	got, err := svc.Suggest(context.Background(), "abcde")
	if err != nil {
		t.Fatalf("Suggest вернул ошибку: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Suggest = %v, ожидался пустой результат: 60 не больше 60", got)
	}
}

// TestSuggest_LimitAndOrder проверяет лимит подсказок и разрешение
// ничьих порядком каталога.
func TestSuggest_LimitAndOrder(t *testing.T) {
	names := []string{
		"Movie.One.mkv",
		"Movie.Two.mkv",
		"Movie.Three.mkv",
		"Movie.Four.mkv",
		"Movie.Five.mkv",
		"Movie.Six.mkv",
	}
	svc := newFuzzy(names, nil)

	got, err := svc.Suggest(context.Background(), "Movie")
	if err != nil {
		t.Fatalf("Suggest вернул ошибку: %v", err)
	}

	if len(got) > 5 {
		t.Errorf("len(Suggest) = %d, лимит 5 нарушен", len(got))
	}
	// При равной похожести порядок каталога сохраняется
	seen := map[string]int{}
	for i, n := range got {
		seen[n] = i
	}
	if i1, ok1 := seen["Movie.One.mkv"]; ok1 {
		if i2, ok2 := seen["Movie.Two.mkv"]; ok2 && i1 > i2 {
			t.Errorf("порядок каталога нарушен: %v", got)
		}
	}
}

// TestSuggest_CacheReuse проверяет, что повторный вызов не перечитывает каталог.
func TestSuggest_CacheReuse(t *testing.T) {
	calls := 0
	svc := newFuzzy([]string{"Movie.mkv"}, &calls)

	ctx := context.Background()
	if _, err := svc.Suggest(ctx, "Movie"); err != nil {
		t.Fatalf("Suggest вернул ошибку: %v", err)
	}
	if _, err := svc.Suggest(ctx, "Muvie"); err != nil {
		t.Fatalf("Suggest вернул ошибку: %v", err)
	}

	if calls != 1 {
		t.Errorf("AllNames вызван %d раз, ожидался 1 (кэш)", calls)
	}
}

// TestSuggest_StoreUnavailable проверяет проброс ошибки хранилища.
func TestSuggest_StoreUnavailable(t *testing.T) {
	repo := &mockFileRepo{
		allNamesFn: func(ctx context.Context, limit int) ([]string, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewFuzzyService(repo, NewCacheService(4, time.Minute), 60, 5, time.Second, testLogger())

	_, err := svc.Suggest(context.Background(), "Movie")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("err = %v, ожидался ErrStoreUnavailable", err)
	}
}

// TestNormalize проверяет каноническую форму сравнения.
func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Movie.2019.720p":   "2019 720p movie",
		"HELLO world":       "hello world",
		"b.a.c":             "a b c",
		"":                  "",
		"...":               "",
	}

	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

// TestSimilarity_Window проверяет оконное сравнение: короткий запрос
// против длинного имени даёт высокую похожесть, несмотря на хвост.
func TestSimilarity_Window(t *testing.T) {
	q := normalize("Moive")
	name := normalize("Movie.2019.720p.Hindi.mkv")

	if sc := similarity(q, name); sc <= 60 {
		t.Errorf("similarity = %d, ожидалось > 60", sc)
	}

	// Идентичные строки — 100
	if sc := similarity("movie", "movie"); sc != 100 {
		t.Errorf("similarity(идентичные) = %d, ожидалось 100", sc)
	}

	// Пустая строка — 0
	if sc := similarity("", "movie"); sc != 0 {
		t.Errorf("similarity(пустая) = %d, ожидалось 0", sc)
	}
}

// TestSimilarity_NonLatin проверяет оконное сравнение не-латинских имён:
// окно идёт по рунам и не режет многобайтовые символы.
func TestSimilarity_NonLatin(t *testing.T) {
	if sc := similarity("фильм", "фильм"); sc != 100 {
		t.Errorf("similarity(идентичные кириллические) = %d, ожидалось 100", sc)
	}

	// Точное вхождение слова в длинное имя — окно находит его целиком
	q := normalize("фильм")
	name := normalize("Новый.Фильм.2020.mkv")
	if sc := similarity(q, name); sc != 100 {
		t.Errorf("similarity(%q, %q) = %d, ожидалось 100 (окно по рунам)", q, name, sc)
	}
}
