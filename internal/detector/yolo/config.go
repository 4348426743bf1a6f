// Package yolo инференс детекторов ultralytics YOLO, экспортированных в ONNX.
package yolo

// Config параметры загрузки ONNX модели и фильтрации ее сырого вывода
type Config struct {
	// Путь к экспортированному .onnx артефакту
	ModelPath string
	// Необязательный YAML файл с метками. Если пусто, берется ключ names
	// из метаданных ONNX
	LabelsPath string
	// Путь к разделяемой библиотеке onnxruntime, пусто - путь по умолчанию
	SharedLibraryPath string
	// Размер входа, если у модели динамические размеры
	InputSize int
	// Рамки с уверенностью не выше порога отбрасываются
	ConfidenceThreshold float32
	// Порог IoU для NMS внутри одного класса
	IoUThreshold float32
	// Максимум рамок на изображение
	MaxDetections int
	// Потоки onnxruntime, 0 - значение по умолчанию
	IntraOpThreads int
	InterOpThreads int
}

// DefaultConfig возвращает пороги, с которыми ultralytics выполняет predict()
func DefaultConfig() Config {
	return Config{
		InputSize:           640,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.7,
		MaxDetections:       300,
	}
}
