// render.go — сборка текстов сообщений и inline-клавиатур выдачи.
// Renderer не знает о транспорте: возвращает текст и model.Keyboard,
// преобразование в проводной формат — забота слоя бота.
package service

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
	"github.com/aaghaz370/stroomabot/internal/token"
)

// Подписи кнопок фильтров.
var filterLabels = map[string]string{
	token.KindQuality:  "Качество",
	token.KindYear:     "Год",
	token.KindLanguage: "Язык",
	token.KindSeason:   "Сезон",
}

// Renderer — сборщик сообщений выдачи.
type Renderer struct {
	pageSize int
}

// NewRenderer создаёт сборщик сообщений.
func NewRenderer(pageSize int) *Renderer {
	return &Renderer{pageSize: pageSize}
}

// Results собирает сообщение страницы результатов:
// нумерованный список файлов с размерами, ряд кнопок фильтров
// и навигационный ряд (только существующие направления).
func (r *Renderer) Results(res *SearchResult) (string, model.Keyboard) {
	var text string
	if res.Query != "" {
		text = fmt.Sprintf("Результаты по запросу <b>%s</b>", html.EscapeString(res.Query))
	} else {
		text = "Каталог"
	}
	text += fmt.Sprintf(" (найдено: %d)\n\n", res.Total)

	start := (res.Page - 1) * res.PageSize
	for i, f := range res.Items {
		text += fmt.Sprintf("%d. [%s] %s\n",
			start+i+1, FormatSize(f.FileSize), html.EscapeString(f.FileName))
	}

	var kb model.Keyboard

	// Ряд фильтров
	var filterRow []model.Button
	for _, kind := range token.Kinds {
		filterRow = append(filterRow, model.Button{
			Text: filterLabels[kind],
			Data: token.FilterMenu(kind, res.Query, res.Page),
		})
	}
	kb = append(kb, filterRow)

	// Навигационный ряд: кнопки только существующих направлений
	var navRow []model.Button
	if res.Page > 1 {
		navRow = append(navRow, model.Button{
			Text: "« Назад",
			Data: token.Results(res.Query, res.Page-1),
		})
	}
	navRow = append(navRow, model.Button{
		Text: fmt.Sprintf("%d/%d", res.Page, res.TotalPages),
		Data: token.Noop,
	})
	if res.Page < res.TotalPages {
		navRow = append(navRow, model.Button{
			Text: "Вперёд »",
			Data: token.Results(res.Query, res.Page+1),
		})
	}
	kb = append(kb, navRow)

	return text, kb
}

// FilterMenu собирает меню выбора значения фильтра.
// Значения года и сезона — усечённые списки: последние десять лет
// и первые десять сезонов покрывают практически весь каталог.
func (r *Renderer) FilterMenu(kind, query string, page int) (string, model.Keyboard) {
	text := fmt.Sprintf("Выберите значение фильтра «%s»", filterLabels[kind])

	var values []string
	switch kind {
	case token.KindQuality:
		values = model.Qualities
	case token.KindLanguage:
		values = model.Languages
	case token.KindYear:
		year := time.Now().Year()
		for y := year; y > year-10; y-- {
			values = append(values, strconv.Itoa(y))
		}
	case token.KindSeason:
		for s := 1; s <= 10; s++ {
			values = append(values, strconv.Itoa(s))
		}
	}

	var kb model.Keyboard
	var row []model.Button
	for _, v := range values {
		row = append(row, model.Button{
			Text: v,
			Data: token.SetFilter(kind, v, query, page),
		})
		if len(row) == 3 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}

	kb = append(kb, []model.Button{{
		Text: "« К результатам",
		Data: token.Back(query, page),
	}})

	return text, kb
}

// Suggestions собирает сообщение fuzzy-подсказок: по кнопке на имя.
func (r *Renderer) Suggestions(query string, names []string) (string, model.Keyboard) {
	text := fmt.Sprintf(
		"По запросу <b>%s</b> ничего не найдено.\nВозможно, вы искали:",
		html.EscapeString(query),
	)

	var kb model.Keyboard
	for _, name := range names {
		kb = append(kb, []model.Button{{
			Text: name,
			Data: token.FuzzyPick(name),
		}})
	}

	return text, kb
}

// NoResults — текст при пустой выдаче без единой подсказки.
func (r *Renderer) NoResults(query string) string {
	return fmt.Sprintf(
		"По запросу <b>%s</b> ничего не найдено.\nПроверьте написание и попробуйте ещё раз.",
		html.EscapeString(query),
	)
}

// FormatSize форматирует размер файла в двоичных единицах
// с одним знаком после запятой: 734003200 → "700.0MB".
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%s", float64(bytes)/float64(div), []string{"KB", "MB", "GB", "TB", "PB"}[exp])
}
