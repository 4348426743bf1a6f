// Package detector содержит адаптер над моделью детекции объектов.
package detector

import (
	"context"
	"errors"
)

// ErrImageDecode возвращается моделью, если файл не удалось декодировать как изображение
var ErrImageDecode = errors.New("image decode failed")

// Box сырой результат модели для одного объекта
type Box struct {
	X1, Y1, X2, Y2 float32 // Координаты в пикселях исходного изображения
	Score          float32 // Уверенность модели
	ClassID        int     // Индекс класса
}

// Model внешняя предобученная модель детекции.
// Реализации должны быть безопасны для конкурентного вызова Predict.
type Model interface {
	// Predict выполняет один проход модели по изображению на диске
	Predict(ctx context.Context, imagePath string) ([]Box, error)
	// Labels возвращает фиксированную таблицу меток модели
	Labels() LabelTable
	// Close освобождает ресурсы модели
	Close() error
}
