package yolo

import (
	"context"
	"fmt"
	"os"

	"plant-detector-go/internal/detector"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// namesMetadataKey ключ, под которым ultralytics кладет таблицу меток в метаданные ONNX
const namesMetadataKey = "names"

// Model ONNX модель YOLO, загруженная один раз на весь процесс.
// Сессия создается без привязанных тензоров, поэтому Predict можно
// вызывать конкурентно без блокировок.
type Model struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputW     int
	inputH     int
	labels     detector.LabelTable
	cfg        Config
	logger     *logrus.Logger
}

// NewModel инициализирует onnxruntime и загружает модель
func NewModel(cfg Config, logger *logrus.Logger) (*Model, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("ONNX model file not found: %w", err)
	}

	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("error initializing ORT environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	m := &Model{
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputW:     cfg.InputSize,
		inputH:     cfg.InputSize,
		cfg:        cfg,
		logger:     logger,
	}

	// Вход ultralytics экспорта: [1, 3, H, W]
	if dims := inputs[0].Dimensions; len(dims) == 4 {
		if dims[2] > 0 {
			m.inputH = int(dims[2])
		}
		if dims[3] > 0 {
			m.inputW = int(dims[3])
		}
	}
	if m.inputW <= 0 || m.inputH <= 0 {
		return nil, fmt.Errorf("model input size is unknown, set it in config")
	}

	m.labels, err = loadLabels(cfg)
	if err != nil {
		return nil, err
	}
	if nc := classCount(outputs[0].Dimensions); nc >= 0 && nc != m.labels.Len() {
		return nil, fmt.Errorf("model predicts %d classes but label table has %d", nc, m.labels.Len())
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return nil, fmt.Errorf("error setting inter-op threads: %w", err)
		}
	}

	m.session, err = ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{m.inputName},
		[]string{m.outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"model_path": cfg.ModelPath,
		"input":      fmt.Sprintf("%s %dx%d", m.inputName, m.inputW, m.inputH),
		"output":     m.outputName,
		"classes":    m.labels.Len(),
	}).Info("ONNX модель загружена")

	return m, nil
}

// Predict выполняет один проход модели по изображению
func (m *Model) Predict(_ context.Context, imagePath string) ([]detector.Box, error) {
	img, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	lb := newLetterbox(bounds.Dx(), bounds.Dy(), m.inputW, m.inputH)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(m.inputH), int64(m.inputW)), lb.prepare(img))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	// Выход выделяет onnxruntime, его размер зависит от модели
	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("model produced no output")
	}
	defer outputs[0].Destroy()

	output, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	return decodeOutput(output.GetData(), output.GetShape(), lb, m.cfg)
}

// Labels возвращает таблицу меток модели
func (m *Model) Labels() detector.LabelTable {
	return m.labels
}

// Close освобождает сессию и окружение onnxruntime
func (m *Model) Close() error {
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy ORT session: %w", err)
		}
		m.session = nil
	}
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			return fmt.Errorf("failed to destroy ORT environment: %w", err)
		}
	}
	m.logger.Info("ONNX модель выгружена")
	return nil
}

// loadLabels берет метки из файла или из метаданных модели
func loadLabels(cfg Config) (detector.LabelTable, error) {
	if cfg.LabelsPath != "" {
		return detector.LoadLabelsFile(cfg.LabelsPath)
	}

	meta, err := ort.GetModelMetadata(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer meta.Destroy()

	names, ok, err := meta.LookupCustomMetadataMap(namesMetadataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q metadata: %w", namesMetadataKey, err)
	}
	if !ok {
		return nil, fmt.Errorf("model has no %q metadata, provide a labels file", namesMetadataKey)
	}

	labels, err := detector.ParseLabels([]byte(names))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q metadata: %w", namesMetadataKey, err)
	}
	return labels, nil
}
