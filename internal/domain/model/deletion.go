package model

import "time"

// DeletionTask — отложенное удаление эфемерного сообщения.
// Идентичность — пара (ChatID, MessageID); на одну цель существует
// не более одной ожидающей задачи (повторное планирование обновляет DeleteAt).
// Задача удаляется из очереди после первой попытки удаления —
// независимо от её результата (повторов нет).
type DeletionTask struct {
	// ChatID — чат, в котором находится сообщение
	ChatID int64
	// MessageID — идентификатор сообщения
	MessageID int64
	// DeleteAt — момент, после которого сообщение подлежит удалению
	DeleteAt time.Time
}
