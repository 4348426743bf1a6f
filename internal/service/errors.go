package service

import "errors"

// Виды ошибок обработки запроса на детекцию.
// Оборачиваются через fmt.Errorf("%w: ...") и проверяются errors.Is.
var (
	// ErrBadUpload файл не передан или не читается
	ErrBadUpload = errors.New("bad upload")
	// ErrStaging не удалось сохранить загрузку во временный файл
	ErrStaging = errors.New("failed to stage upload")
	// ErrDecodeFailure модель не смогла декодировать изображение
	ErrDecodeFailure = errors.New("image decode failure")
	// ErrInferenceFailure сбой внутри вызова модели
	ErrInferenceFailure = errors.New("inference failure")
)
