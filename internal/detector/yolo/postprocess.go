package yolo

import (
	"fmt"
	"sort"

	"plant-detector-go/internal/detector"

	"github.com/chewxy/math32"
)

// outputLayout формат основного выхода модели
type outputLayout int

const (
	// layoutRaw [1, 4+nc, N]: cx, cy, w, h и оценки классов по каждому якорю
	layoutRaw outputLayout = iota
	// layoutEndToEnd [1, N, 6]: x1, y1, x2, y2, score, class после встроенного NMS
	layoutEndToEnd
)

// endToEndRowSize длина строки выхода экспорта с nms=True
const endToEndRowSize = 6

// detectLayout определяет формат выхода по его размерности
func detectLayout(shape []int64) (outputLayout, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return 0, fmt.Errorf("unexpected output shape %v", shape)
	}
	rows, cols := shape[1], shape[2]
	if cols == endToEndRowSize && rows > cols {
		return layoutEndToEnd, nil
	}
	if rows <= 4 {
		return 0, fmt.Errorf("output shape %v has no class scores", shape)
	}
	return layoutRaw, nil
}

// classCount количество классов, которое предсказывает модель, или -1 если его не вывести из формы
func classCount(shape []int64) int {
	layout, err := detectLayout(shape)
	if err != nil || layout != layoutRaw || shape[1] < 0 {
		return -1
	}
	return int(shape[1]) - 4
}

// decodeOutput переводит сырой выход модели в рамки в координатах исходного изображения.
// Результат отсортирован по убыванию уверенности.
func decodeOutput(data []float32, shape []int64, lb letterbox, cfg Config) ([]detector.Box, error) {
	layout, err := detectLayout(shape)
	if err != nil {
		return nil, err
	}

	rows, cols := int(shape[1]), int(shape[2])
	if len(data) < rows*cols {
		return nil, fmt.Errorf("output holds %d values, shape %v needs %d", len(data), shape, rows*cols)
	}

	var boxes []detector.Box
	switch layout {
	case layoutEndToEnd:
		boxes = decodeEndToEnd(data, rows, lb, cfg.ConfidenceThreshold)
	default:
		boxes = decodeRaw(data, rows, cols, lb, cfg.ConfidenceThreshold)
		boxes = applyNMS(boxes, cfg.IoUThreshold)
	}

	if cfg.MaxDetections > 0 && len(boxes) > cfg.MaxDetections {
		boxes = boxes[:cfg.MaxDetections]
	}
	return boxes, nil
}

// decodeRaw выбирает лучший класс для каждого якоря и отбрасывает слабые
func decodeRaw(data []float32, rows, cols int, lb letterbox, threshold float32) []detector.Box {
	numClasses := rows - 4
	boxes := make([]detector.Box, 0, 64)

	for idx := 0; idx < cols; idx++ {
		classID := 0
		score := float32(-1)
		for c := 0; c < numClasses; c++ {
			if s := data[(4+c)*cols+idx]; s > score {
				score = s
				classID = c
			}
		}
		if score <= threshold {
			continue
		}

		xc, yc := data[idx], data[cols+idx]
		w, h := data[2*cols+idx], data[3*cols+idx]
		boxes = append(boxes, toSourceBox(lb, xc-w/2, yc-h/2, xc+w/2, yc+h/2, score, classID))
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})
	return boxes
}

// decodeEndToEnd разбирает выход модели со встроенным NMS
func decodeEndToEnd(data []float32, rows int, lb letterbox, threshold float32) []detector.Box {
	boxes := make([]detector.Box, 0, 16)

	for i := 0; i < rows; i++ {
		row := data[i*endToEndRowSize : (i+1)*endToEndRowSize]
		if row[4] <= threshold {
			continue
		}
		boxes = append(boxes, toSourceBox(lb, row[0], row[1], row[2], row[3], row[4], int(row[5])))
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})
	return boxes
}

func toSourceBox(lb letterbox, x1, y1, x2, y2, score float32, classID int) detector.Box {
	x1, y1 = lb.clip(lb.toSource(x1, y1))
	x2, y2 = lb.clip(lb.toSource(x2, y2))
	return detector.Box{X1: x1, Y1: y1, X2: x2, Y2: y2, Score: score, ClassID: classID}
}

// applyNMS жадный NMS внутри каждого класса.
// boxes должны быть отсортированы по убыванию уверенности.
func applyNMS(boxes []detector.Box, iouThreshold float32) []detector.Box {
	if len(boxes) == 0 {
		return boxes
	}

	kept := make([]detector.Box, 0, len(boxes))
	used := make([]bool, len(boxes))

	for i := range boxes {
		if used[i] {
			continue
		}
		kept = append(kept, boxes[i])
		used[i] = true

		for j := i + 1; j < len(boxes); j++ {
			if used[j] || boxes[j].ClassID != boxes[i].ClassID {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}

	return kept
}

// iou отношение площади пересечения к площади объединения
func iou(a, b detector.Box) float32 {
	ix1, iy1 := math32.Max(a.X1, b.X1), math32.Max(a.Y1, b.Y1)
	ix2, iy2 := math32.Min(a.X2, b.X2), math32.Min(a.Y2, b.Y2)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
