package model

import "time"

// SourceChannel — зарегистрированный канал-источник файлов.
// Посты с документами и видео из зарегистрированных каналов
// индексируются в каталог.
type SourceChannel struct {
	// ChannelID — идентификатор канала
	ChannelID int64
	// AddedAt — время регистрации канала
	AddedAt time.Time
}
