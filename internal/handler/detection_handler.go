package handler

import (
	"errors"
	"net/http"

	"plant-detector-go/internal/middleware"
	"plant-detector-go/internal/service"
	"plant-detector-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// maxMultipartMemory часть формы, которая держится в памяти, остальное уходит на диск
	maxMultipartMemory = 32 << 20
	uploadField        = "file"
	serviceName        = "Plant Detector API Server"
	serviceVersion     = "1.0.0"
)

// DetectionHandler обрабатывает HTTP запросы на детекцию объектов
type DetectionHandler struct {
	detectionService *service.DetectionService
	logger           *logrus.Logger
}

// NewDetectionHandler создает новый экземпляр DetectionHandler
func NewDetectionHandler(detectionService *service.DetectionService, logger *logrus.Logger) *DetectionHandler {
	return &DetectionHandler{
		detectionService: detectionService,
		logger:           logger,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *DetectionHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Info)
	router.GET("/health", h.CheckHealth)

	// Оба варианта пути регистрируются явно, без редиректа 307 для POST
	router.POST("/detect", h.DetectObjects)
	router.POST("/detect/", h.DetectObjects)
	router.POST("/predict", h.Predict)
	router.POST("/predict/", h.Predict)
}

// Info возвращает описание сервиса
func (h *DetectionHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}

// CheckHealth проверяет состояние сервиса
// @Summary Проверка состояния сервиса
// @Description Возвращает статус сервиса и признак загруженной модели
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (h *DetectionHandler) CheckHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.detectionService.CheckHealth())
}

// DetectObjects обрабатывает загрузку изображения и возвращает найденные объекты
// @Summary Детекция объектов на изображении
// @Description Запускает модель по загруженному изображению и возвращает рамки, классы и уверенность
// @Tags detection
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Изображение для детекции"
// @Success 200 {object} models.DetectionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /detect/ [post]
func (h *DetectionHandler) DetectObjects(c *gin.Context) {
	resp, ok := h.detect(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Predict тот же поток детекции в формате, который читает фронтенд
// @Summary Детекция с главным классом
// @Description Возвращает класс с наибольшей уверенностью и полный список детекций
// @Tags detection
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Изображение для детекции"
// @Success 200 {object} models.PredictResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /predict/ [post]
func (h *DetectionHandler) Predict(c *gin.Context) {
	resp, ok := h.detect(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.NewPredictResponse(resp.Detections))
}

// detect читает файл из формы и запускает сервис.
// При ошибке ответ уже записан и возвращается false.
func (h *DetectionHandler) detect(c *gin.Context) (*models.DetectionResponse, bool) {
	log := h.logger.WithField("request_id", middleware.GetRequestID(c))
	log.Info("Получен запрос на детекцию")

	// Парсим multipart form
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		log.Errorf("Ошибка парсинга multipart form: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid multipart form: " + err.Error()})
		return nil, false
	}
	defer c.Request.MultipartForm.RemoveAll()

	// Получаем файл изображения
	file, header, err := c.Request.FormFile(uploadField)
	if err != nil {
		log.Errorf("Ошибка получения файла: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "file field \"file\" is required"})
		return nil, false
	}
	defer file.Close()

	log.Infof("Получен файл: %s, размер: %d байт", header.Filename, header.Size)

	resp, err := h.detectionService.DetectObjects(c.Request.Context(), file, header.Filename)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("Ошибка детекции: %v", err)
		} else {
			log.Warnf("Некорректная загрузка: %v", err)
		}
		_ = c.Error(err)
		c.JSON(status, models.ErrorResponse{Error: err.Error()})
		return nil, false
	}

	return resp, true
}

// statusFor HTTP статус для ошибки сервиса
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrBadUpload):
		return http.StatusBadRequest
	default:
		// ErrDecodeFailure, ErrInferenceFailure, ErrStaging и все прочее
		return http.StatusInternalServerError
	}
}
