// Пакет token — кодек навигационных токенов.
//
// Сессий на сервере нет: весь контекст взаимодействия (действие, поисковый
// запрос, фильтры, страница) переносится внутри одного непрозрачного токена,
// прикреплённого к кнопке. Токен обязан декодироваться однозначно, даже если
// сам запрос содержит разделитель полей — поэтому сегмент запроса всегда
// percent-кодируется и никогда не конкатенируется с полями "как есть".
//
// Грамматики (фиксированный упорядоченный список полей на действие):
//
//	res:<page>:<query>               — страница результатов
//	flt:<kind>:<page>:<query>        — меню выбора фильтра
//	set:<kind>:<value>:<page>:<query> — применение фильтра
//	bck:<page>:<query>               — возврат к результатам
//	fzy:<suggestion>                 — выбор fuzzy-подсказки
//
// <page> — положительное целое без ведущих нулей. <kind> и <value> —
// значения закрытых перечислений, валидируются при декодировании.
package token

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aaghaz370/stroomabot/internal/domain/model"
)

// MaxLen — жёсткий потолок длины токена (лимит callback-payload транспорта).
// При превышении усекается только сегмент запроса, структурные поля — никогда.
const MaxLen = 64

// Noop — payload неактивной кнопки (индикатор страницы). Не декодируется.
const Noop = "noop"

// Действия токена.
const (
	ActionResults    = "res"
	ActionFilterMenu = "flt"
	ActionSetFilter  = "set"
	ActionBack       = "bck"
	ActionFuzzyPick  = "fzy"
)

// Виды фильтров.
const (
	KindQuality  = "quality"
	KindYear     = "year"
	KindLanguage = "language"
	KindSeason   = "season"
)

// Kinds — закрытый список видов фильтров.
var Kinds = []string{KindQuality, KindYear, KindLanguage, KindSeason}

// ErrMalformedToken — токен не соответствует ни одной известной грамматике.
var ErrMalformedToken = errors.New("некорректный навигационный токен")

// sep — разделитель полей. Сегмент запроса percent-кодируется,
// поэтому sep внутри полей невозможен.
const sep = ":"

// State — декодированный контекст взаимодействия.
type State struct {
	// Action — действие токена (res/flt/set/bck/fzy)
	Action string
	// Query — поисковый запрос (для fzy — выбранная подсказка)
	Query string
	// Kind — вид фильтра (только для flt и set)
	Kind string
	// Filters — применяемые фильтры поиска (заполняется только для set)
	Filters map[string]string
	// Page — номер страницы (≥ 1; для fzy всегда 1)
	Page int
}

// Results кодирует токен страницы результатов.
func Results(query string, page int) string {
	return assemble(ActionResults, nil, page, query)
}

// FilterMenu кодирует токен открытия меню фильтра.
func FilterMenu(kind, query string, page int) string {
	return assemble(ActionFilterMenu, []string{kind}, page, query)
}

// SetFilter кодирует токен применения фильтра.
func SetFilter(kind, value, query string, page int) string {
	return assemble(ActionSetFilter, []string{kind, value}, page, query)
}

// Back кодирует токен возврата к результатам.
func Back(query string, page int) string {
	return assemble(ActionBack, nil, page, query)
}

// FuzzyPick кодирует токен выбора fuzzy-подсказки.
// Подсказка открывает новый поиск без фильтров, поэтому страница не кодируется.
func FuzzyPick(suggestion string) string {
	head := ActionFuzzyPick + sep
	return head + truncateEscaped(url.QueryEscape(suggestion), MaxLen-len(head))
}

// assemble собирает токен из действия, структурных полей, страницы и запроса.
// Сегмент запроса идёт последним и усекается до потолка длины.
func assemble(action string, fields []string, page int, query string) string {
	if page < 1 {
		page = 1
	}

	var b strings.Builder
	b.WriteString(action)
	for _, f := range fields {
		b.WriteString(sep)
		b.WriteString(f)
	}
	b.WriteString(sep)
	b.WriteString(strconv.Itoa(page))
	b.WriteString(sep)

	head := b.String()
	return head + truncateEscaped(url.QueryEscape(query), MaxLen-len(head))
}

// truncateEscaped усекает percent-кодированную строку до max байт,
// не разрывая escape-последовательности %XX.
// Усечение сегмента запроса допустимо и намеренно с потерями:
// round-trip закон ослабляется только для сверхдлинных запросов.
func truncateEscaped(esc string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(esc) <= max {
		return esc
	}
	esc = esc[:max]
	// Позиция % в двух последних байтах означает разорванный escape
	if i := strings.LastIndex(esc, "%"); i >= 0 && i > len(esc)-3 {
		esc = esc[:i]
	}
	return esc
}

// Decode разбирает токен в State.
// Возвращает ErrMalformedToken, если токен не соответствует ни одной
// грамматике или содержит значение вне закрытого перечисления.
func Decode(tok string) (State, error) {
	if len(tok) > MaxLen {
		return State{}, fmt.Errorf("%w: длина %d превышает %d", ErrMalformedToken, len(tok), MaxLen)
	}

	parts := strings.Split(tok, sep)
	action := parts[0]

	switch action {
	case ActionResults, ActionBack:
		// <action>:<page>:<query>
		if len(parts) != 3 {
			return State{}, fmt.Errorf("%w: ожидалось 3 поля, получено %d", ErrMalformedToken, len(parts))
		}
		page, err := parsePage(parts[1])
		if err != nil {
			return State{}, err
		}
		query, err := unescapeQuery(parts[2])
		if err != nil {
			return State{}, err
		}
		return State{Action: action, Query: query, Filters: map[string]string{}, Page: page}, nil

	case ActionFilterMenu:
		// flt:<kind>:<page>:<query>
		if len(parts) != 4 {
			return State{}, fmt.Errorf("%w: ожидалось 4 поля, получено %d", ErrMalformedToken, len(parts))
		}
		if !validKind(parts[1]) {
			return State{}, fmt.Errorf("%w: неизвестный вид фильтра %q", ErrMalformedToken, parts[1])
		}
		page, err := parsePage(parts[2])
		if err != nil {
			return State{}, err
		}
		query, err := unescapeQuery(parts[3])
		if err != nil {
			return State{}, err
		}
		return State{Action: action, Query: query, Kind: parts[1], Filters: map[string]string{}, Page: page}, nil

	case ActionSetFilter:
		// set:<kind>:<value>:<page>:<query>
		if len(parts) != 5 {
			return State{}, fmt.Errorf("%w: ожидалось 5 полей, получено %d", ErrMalformedToken, len(parts))
		}
		kind, value := parts[1], parts[2]
		if err := validateFilterValue(kind, value); err != nil {
			return State{}, err
		}
		page, err := parsePage(parts[3])
		if err != nil {
			return State{}, err
		}
		query, err := unescapeQuery(parts[4])
		if err != nil {
			return State{}, err
		}
		return State{
			Action:  action,
			Query:   query,
			Kind:    kind,
			Filters: map[string]string{kind: value},
			Page:    page,
		}, nil

	case ActionFuzzyPick:
		// fzy:<suggestion> — новый поиск без фильтров, страница 1
		if len(parts) != 2 {
			return State{}, fmt.Errorf("%w: ожидалось 2 поля, получено %d", ErrMalformedToken, len(parts))
		}
		suggestion, err := unescapeQuery(parts[1])
		if err != nil {
			return State{}, err
		}
		return State{Action: action, Query: suggestion, Filters: map[string]string{}, Page: 1}, nil

	default:
		return State{}, fmt.Errorf("%w: неизвестное действие %q", ErrMalformedToken, action)
	}
}

// parsePage разбирает номер страницы: положительное целое без ведущих нулей.
func parsePage(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || strconv.Itoa(p) != s {
		return 0, fmt.Errorf("%w: некорректный номер страницы %q", ErrMalformedToken, s)
	}
	return p, nil
}

// unescapeQuery декодирует percent-кодированный сегмент запроса.
func unescapeQuery(s string) (string, error) {
	q, err := url.QueryUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: некорректное кодирование запроса", ErrMalformedToken)
	}
	return q, nil
}

// validKind проверяет принадлежность вида фильтра закрытому перечислению.
func validKind(kind string) bool {
	for _, k := range Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// validateFilterValue проверяет значение фильтра по перечислению его вида.
func validateFilterValue(kind, value string) error {
	switch kind {
	case KindQuality:
		for _, q := range model.Qualities {
			if value == q {
				return nil
			}
		}
	case KindLanguage:
		for _, l := range model.Languages {
			if value == l {
				return nil
			}
		}
	case KindYear:
		y, err := strconv.Atoi(value)
		if err == nil && strconv.Itoa(y) == value && y >= 1900 && y <= time.Now().Year()+1 {
			return nil
		}
	case KindSeason:
		s, err := strconv.Atoi(value)
		if err == nil && strconv.Itoa(s) == value && s >= 1 && s <= 99 {
			return nil
		}
	default:
		return fmt.Errorf("%w: неизвестный вид фильтра %q", ErrMalformedToken, kind)
	}
	return fmt.Errorf("%w: недопустимое значение %q фильтра %q", ErrMalformedToken, value, kind)
}
