// Пакет metadata — извлечение структурированных атрибутов из имени файла.
// Extract — чистая и тотальная функция: никогда не возвращает ошибку,
// отсутствующий атрибут — это пустое значение, а не сбой.
package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// Регулярные выражения компилируются один раз на старте пакета.
var (
	// qualityRe — первое вхождение 480p/720p/1080p/2160p/4k без учёта регистра.
	qualityRe = regexp.MustCompile(`(?i)(480p|720p|1080p|2160p|4k)`)
	// yearRe — первый 4-значный токен вида 19xx или 20xx.
	yearRe = regexp.MustCompile(`(19\d{2}|20\d{2})`)
	// seasonRe — первое вхождение S + 1-2 цифры без учёта регистра.
	seasonRe = regexp.MustCompile(`(?i)S(\d{1,2})`)
)

// Info — извлечённые атрибуты имени файла.
// Каждое поле независимо: отсутствие одного не влияет на извлечение других.
type Info struct {
	// Quality — качество видео (480p/720p/1080p/2160p), пустая строка = не определено
	Quality string
	// Year — год выпуска, nil = не определён
	Year *int
	// Languages — все языки из закрытого набора model.Languages,
	// найденные как подстроки; порядок — порядок перечисления набора
	Languages []string
	// Season — номер сезона, nil = не определён
	Season *int
}

// Extract извлекает качество, год, языки и сезон из имени файла.
// Правила независимы и нечувствительны к порядку применения.
func Extract(filename string) Info {
	info := Info{}

	// Качество: 4k нормализуется в 2160p (один класс качества)
	if m := qualityRe.FindString(filename); m != "" {
		q := strings.ToLower(m)
		if q == "4k" {
			q = model.Quality2160p
		}
		info.Quality = q
	}

	// Год
	if m := yearRe.FindString(filename); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			info.Year = &y
		}
	}

	// Языки: подстрочное совпадение в нижнем регистре,
	// сохраняются все найденные в порядке перечисления набора
	lower := strings.ToLower(filename)
	for _, lang := range model.Languages {
		if strings.Contains(lower, strings.ToLower(lang)) {
			info.Languages = append(info.Languages, lang)
		}
	}

	// Сезон
	if m := seasonRe.FindStringSubmatch(filename); m != nil {
		if s, err := strconv.Atoi(m[1]); err == nil {
			info.Season = &s
		}
	}

	return info
}
