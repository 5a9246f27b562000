package model

// Button — кнопка интерактивного действия под сообщением.
// Data — навигационный токен (или "noop" для неактивного индикатора страницы).
type Button struct {
	// Text — подпись кнопки
	Text string
	// Data — payload действия, передаётся обратно при нажатии (лимит транспорта 64 байта)
	Data string
}

// Keyboard — раскладка кнопок по рядам.
type Keyboard [][]Button
