// Пакет model — доменные модели stroomabot.
// FileRecord — запись каталога медиафайлов (таблица files).
package model

import "time"

// Допустимые значения качества видео.
// Пустая строка означает "качество не определено".
const (
	Quality480p  = "480p"
	Quality720p  = "720p"
	Quality1080p = "1080p"
	Quality2160p = "2160p"
)

// Qualities — закрытый список значений качества (для валидации и клавиатур фильтров).
var Qualities = []string{Quality480p, Quality720p, Quality1080p, Quality2160p}

// Languages — закрытый список языков, извлекаемых из имён файлов.
// Порядок фиксирован: языки в результатах извлечения идут именно в этом порядке,
// а не в порядке появления в имени файла.
var Languages = []string{"Hindi", "English", "Tamil", "Telugu", "Kannada", "Malayalam"}

// FileRecord — запись файла в каталоге.
// Идентичность — пара (ChannelID, MessageID): файл живёт в сообщении
// канала-источника. ID — суррогатный ключ, сохраняющий порядок добавления
// в каталог (детерминированный порядок результатов поиска).
type FileRecord struct {
	// ID — порядковый номер записи в каталоге (BIGSERIAL)
	ID int64
	// ChannelID — идентификатор канала-источника
	ChannelID int64
	// MessageID — идентификатор сообщения с файлом внутри канала
	MessageID int64
	// FileName — отображаемое имя файла
	FileName string
	// FileSize — размер файла в байтах
	FileSize int64
	// Quality — качество видео (480p/720p/1080p/2160p, пустая строка = не определено)
	Quality string
	// Year — год выпуска (nil = не определён)
	Year *int
	// Languages — языки, найденные в имени файла (может быть пустым)
	Languages []string
	// Season — номер сезона (nil = не определён)
	Season *int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
