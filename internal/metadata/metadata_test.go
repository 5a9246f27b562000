package metadata

import "testing"

// TestExtract_AllAttributes проверяет извлечение всех атрибутов из типичного имени.
func TestExtract_AllAttributes(t *testing.T) {
	info := Extract("Movie.2019.720p.Hindi.mkv")

	if info.Quality != "720p" {
		t.Errorf("Quality = %q, ожидался '720p'", info.Quality)
	}
	if info.Year == nil || *info.Year != 2019 {
		t.Errorf("Year = %v, ожидался 2019", info.Year)
	}
	if len(info.Languages) != 1 || info.Languages[0] != "Hindi" {
		t.Errorf("Languages = %v, ожидался [Hindi]", info.Languages)
	}
	if info.Season != nil {
		t.Errorf("Season = %v, ожидался nil", info.Season)
	}
}

// TestExtract_Quality4K проверяет нормализацию 4k → 2160p.
func TestExtract_Quality4K(t *testing.T) {
	info := Extract("Series.S01.4K.Tamil.mkv")
	if info.Quality != "2160p" {
		t.Errorf("Quality = %q, ожидался '2160p' (нормализация 4k)", info.Quality)
	}

	info = Extract("Series.2160P.mkv")
	if info.Quality != "2160p" {
		t.Errorf("Quality = %q, ожидался '2160p'", info.Quality)
	}
}

// TestExtract_QualityCaseInsensitive проверяет нечувствительность к регистру.
func TestExtract_QualityCaseInsensitive(t *testing.T) {
	info := Extract("movie.1080P.mkv")
	if info.Quality != "1080p" {
		t.Errorf("Quality = %q, ожидался '1080p'", info.Quality)
	}
}

// TestExtract_QualityFirstMatch проверяет, что берётся первое вхождение.
func TestExtract_QualityFirstMatch(t *testing.T) {
	info := Extract("Movie.480p.vs.1080p.mkv")
	if info.Quality != "480p" {
		t.Errorf("Quality = %q, ожидался '480p' (первое вхождение)", info.Quality)
	}
}

// TestExtract_YearRange проверяет диапазоны 19xx/20xx и игнорирование прочих чисел.
func TestExtract_YearRange(t *testing.T) {
	info := Extract("Classic.1956.mkv")
	if info.Year == nil || *info.Year != 1956 {
		t.Errorf("Year = %v, ожидался 1956", info.Year)
	}

	// 4-значное число вне 19xx/20xx — не год
	info = Extract("Movie.1799.mkv")
	if info.Year != nil {
		t.Errorf("Year = %v, ожидался nil (1799 вне диапазона)", info.Year)
	}
}

// TestExtract_MultipleLanguages проверяет сохранение всех языков
// в порядке перечисления набора, а не в порядке появления в имени.
func TestExtract_MultipleLanguages(t *testing.T) {
	info := Extract("Movie.2020.Telugu.Hindi.mkv")

	if len(info.Languages) != 2 {
		t.Fatalf("Languages count = %d, ожидался 2", len(info.Languages))
	}
	// Hindi идёт раньше Telugu в наборе — порядок набора, не имени
	if info.Languages[0] != "Hindi" || info.Languages[1] != "Telugu" {
		t.Errorf("Languages = %v, ожидался [Hindi Telugu]", info.Languages)
	}
}

// TestExtract_Season проверяет извлечение номера сезона.
func TestExtract_Season(t *testing.T) {
	info := Extract("Show.s03.720p.mkv")
	if info.Season == nil || *info.Season != 3 {
		t.Errorf("Season = %v, ожидался 3", info.Season)
	}

	info = Extract("Show.S12E05.mkv")
	if info.Season == nil || *info.Season != 12 {
		t.Errorf("Season = %v, ожидался 12", info.Season)
	}
}

// TestExtract_Total проверяет тотальность: любой вход даёт результат без паники,
// отсутствие атрибутов — пустые значения.
func TestExtract_Total(t *testing.T) {
	inputs := []string{
		"",
		"no-attributes-here",
		"???%%%___***",
		"\x00\xff",
		"ピクセル.мкв",
	}

	for _, in := range inputs {
		info := Extract(in)
		if info.Quality != "" || info.Year != nil || info.Season != nil || len(info.Languages) != 0 {
			t.Errorf("Extract(%q) = %+v, ожидались пустые атрибуты", in, info)
		}
	}
}
