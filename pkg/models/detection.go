package models

// DetectionRecord один найденный на изображении объект
type DetectionRecord struct {
	ClassName  string     `json:"class_name"` // Имя класса из таблицы меток модели
	ClassID    int        `json:"class_id"`   // Индекс класса в таблице меток
	Confidence float64    `json:"confidence"` // Уверенность, округлена до 4 знаков
	BBox       [4]float64 `json:"bbox"`       // [x1, y1, x2, y2] в пикселях, округлены до 2 знаков
}

// DetectionResponse ответ эндпоинта /detect
type DetectionResponse struct {
	Detections []DetectionRecord `json:"detections"`
}

// PredictResponse ответ эндпоинта /predict, который читает фронтенд
type PredictResponse struct {
	PredictedClass *string           `json:"predicted_class"` // nil, если ничего не найдено
	Confidence     float64           `json:"confidence"`
	Detections     []DetectionRecord `json:"detections"`
}

// HealthResponse представляет ответ проверки здоровья сервиса
type HealthResponse struct {
	Status      string `json:"status"`       // Статус сервиса (online)
	Message     string `json:"message"`      // Человекочитаемое описание
	ModelLoaded bool   `json:"model_loaded"` // Загружена ли модель
}

// ErrorResponse тело ответа для любых не-2xx статусов
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewPredictResponse строит ответ /predict по списку детекций.
// Берется запись с максимальной уверенностью.
func NewPredictResponse(detections []DetectionRecord) *PredictResponse {
	resp := &PredictResponse{Detections: detections}
	if resp.Detections == nil {
		resp.Detections = []DetectionRecord{}
	}

	for i := range detections {
		if resp.PredictedClass == nil || detections[i].Confidence > resp.Confidence {
			name := detections[i].ClassName
			resp.PredictedClass = &name
			resp.Confidence = detections[i].Confidence
		}
	}

	return resp
}
