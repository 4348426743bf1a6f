package detector

import (
	"context"
	"fmt"
	"math"

	"plant-detector-go/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	confidenceDecimals = 4
	bboxDecimals       = 2
)

// Adapter владеет загруженной моделью и переводит ее вывод в DetectionRecord
type Adapter struct {
	model  Model
	logger *logrus.Logger
}

// NewAdapter создает адаптер над уже загруженной моделью
func NewAdapter(model Model, logger *logrus.Logger) *Adapter {
	return &Adapter{
		model:  model,
		logger: logger,
	}
}

// Detect запускает модель один раз и нормализует результат.
// Порядок детекций сохраняется таким, каким его вернула модель.
func (a *Adapter) Detect(ctx context.Context, imagePath string) ([]models.DetectionRecord, error) {
	if a.model == nil {
		return nil, fmt.Errorf("model is not loaded")
	}

	boxes, err := a.model.Predict(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	labels := a.model.Labels()
	records := make([]models.DetectionRecord, 0, len(boxes))
	for _, box := range boxes {
		name, ok := labels.Name(box.ClassID)
		if !ok {
			return nil, fmt.Errorf("class index %d is outside label table of %d classes", box.ClassID, labels.Len())
		}

		records = append(records, models.DetectionRecord{
			ClassName:  name,
			ClassID:    box.ClassID,
			Confidence: Round(float64(box.Score), confidenceDecimals),
			BBox: [4]float64{
				Round(float64(box.X1), bboxDecimals),
				Round(float64(box.Y1), bboxDecimals),
				Round(float64(box.X2), bboxDecimals),
				Round(float64(box.Y2), bboxDecimals),
			},
		})
	}

	a.logger.Debugf("Модель вернула %d объектов для %s", len(records), imagePath)
	return records, nil
}

// Loaded сообщает, держит ли адаптер модель
func (a *Adapter) Loaded() bool {
	return a != nil && a.model != nil
}

// Close освобождает модель. Вызывается только при остановке процесса.
func (a *Adapter) Close() error {
	if a.model == nil {
		return nil
	}
	return a.model.Close()
}

// Round округляет значение до заданного числа знаков после запятой
func Round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
