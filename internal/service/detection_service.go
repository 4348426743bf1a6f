package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plant-detector-go/internal/detector"
	"plant-detector-go/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	healthStatus  = "online"
	healthMessage = "Object Detection API running"
	defaultExt    = ".jpg"
)

// imageExtensions расширения, которые сохраняются у временного файла
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Detector адаптер модели, которым пользуется сервис
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]models.DetectionRecord, error)
	Loaded() bool
}

// DetectionService сервис детекции объектов на загруженных изображениях
type DetectionService struct {
	detector Detector
	tempDir  string
	logger   *logrus.Logger
}

// NewDetectionService создает новый сервис детекции
func NewDetectionService(detector Detector, tempDir string, logger *logrus.Logger) *DetectionService {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &DetectionService{
		detector: detector,
		tempDir:  tempDir,
		logger:   logger,
	}
}

// DetectObjects сохраняет загрузку во временный файл, запускает модель и
// удаляет файл на любом пути выхода
func (s *DetectionService) DetectObjects(ctx context.Context, upload io.Reader, filename string) (*models.DetectionResponse, error) {
	// Начатую детекцию не прерываем при отключении клиента
	ctx = context.WithoutCancel(ctx)
	startTime := time.Now()

	path, release, err := s.stageUpload(upload, filename)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := s.detector.Detect(ctx, path)
	if err != nil {
		if errors.Is(err, detector.ErrImageDecode) {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}

	s.logger.WithFields(logrus.Fields{
		"filename":   filename,
		"detections": len(records),
		"elapsed":    time.Since(startTime).String(),
	}).Info("Детекция завершена")

	return &models.DetectionResponse{Detections: records}, nil
}

// CheckHealth возвращает состояние сервиса
func (s *DetectionService) CheckHealth() *models.HealthResponse {
	return &models.HealthResponse{
		Status:      healthStatus,
		Message:     healthMessage,
		ModelLoaded: s.detector != nil && s.detector.Loaded(),
	}
}

// stageUpload пишет загрузку в уникальный временный файл.
// release удаляет файл и должен быть вызван ровно один раз.
func (s *DetectionService) stageUpload(upload io.Reader, filename string) (string, func(), error) {
	if upload == nil {
		return "", nil, fmt.Errorf("%w: file is required", ErrBadUpload)
	}

	path := filepath.Join(s.tempDir, fmt.Sprintf("temp_%s%s", strings.ReplaceAll(uuid.NewString(), "-", ""), uploadExt(filename)))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStaging, err)
	}

	release := func() {
		if err := os.Remove(path); err != nil {
			s.logger.Warnf("Не удалось удалить временный файл %s: %v", path, err)
		}
	}

	written, err := io.Copy(file, upload)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		release()
		return "", nil, fmt.Errorf("%w: %v", ErrStaging, err)
	}
	if written == 0 {
		release()
		return "", nil, fmt.Errorf("%w: uploaded file is empty", ErrBadUpload)
	}

	s.logger.Debugf("Загрузка %s сохранена в %s (%d байт)", filename, path, written)
	return path, release, nil
}

// uploadExt расширение временного файла по имени загрузки
func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if imageExtensions[ext] {
		return ext
	}
	return defaultExt
}
