package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plant-detector-go/internal/client"
	"plant-detector-go/internal/config"
	"plant-detector-go/internal/detector"
	"plant-detector-go/internal/detector/yolo"
	"plant-detector-go/internal/handler"
	"plant-detector-go/internal/health"
	"plant-detector-go/internal/logging"
	"plant-detector-go/internal/middleware"
	"plant-detector-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Получаем конфигурацию из переменных окружения
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем логгер
	logger, err := logging.NewLogger(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		logrus.Fatalf("Ошибка инициализации логгера: %v", err)
	}

	logger.Info("Запуск Plant Detector API Server")

	// Загружаем модель один раз на все время работы процесса
	model, err := newModel(cfg, logger)
	if err != nil {
		logger.Fatalf("Ошибка загрузки модели: %v", err)
	}
	adapter := detector.NewAdapter(model, logger)
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.Errorf("Ошибка освобождения модели: %v", err)
		}
	}()

	if err := os.MkdirAll(cfg.Upload.TempDir, 0o755); err != nil {
		logger.Fatalf("Ошибка создания папки для временных файлов: %v", err)
	}

	// Инициализируем сервисы и обработчики
	detectionService := service.NewDetectionService(adapter, cfg.Upload.TempDir, logger)
	detectionHandler := handler.NewDetectionHandler(detectionService, logger)

	// Настраиваем Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Добавляем middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Регистрируем маршруты
	detectionHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var healthServer *health.Server
	if cfg.GRPC.HealthPort > 0 {
		healthServer = health.NewServer(logger)
		healthServer.SetServing(adapter.Loaded())
		go func() {
			if err := healthServer.ListenAndServe(cfg.GRPCAddress()); err != nil {
				logger.Errorf("gRPC health сервер остановлен: %v", err)
			}
		}()
	}

	// Запускаем сервер
	go func() {
		logger.Infof("Сервер запущен на %s", cfg.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Остановка сервера...")
	if healthServer != nil {
		healthServer.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Ошибка остановки сервера: %v", err)
	}

	logger.Info("Сервер остановлен")
}

// newModel создает модель выбранного бэкенда
func newModel(cfg *config.Config, logger *logrus.Logger) (detector.Model, error) {
	switch cfg.Model.Backend {
	case config.BackendRemote:
		model, err := newRemoteModel(cfg, logger)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		model, err := yolo.NewModel(cfg.YOLOConfig(), logger)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
}

// newRemoteModel подключается к сервису инференса и получает таблицу меток
func newRemoteModel(cfg *config.Config, logger *logrus.Logger) (*client.InferenceClient, error) {
	inferenceClient := client.NewInferenceClient(cfg.InferenceAPI.BaseURL, cfg.InferenceTimeout(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.InferenceTimeout())
	defer cancel()

	if err := inferenceClient.CheckHealth(ctx); err != nil {
		logger.Warnf("Сервис инференса недоступен: %v", err)
	}

	if cfg.Model.LabelsPath != "" {
		labels, err := detector.LoadLabelsFile(cfg.Model.LabelsPath)
		if err != nil {
			return nil, err
		}
		inferenceClient.SetLabels(labels)
		return inferenceClient, nil
	}

	if err := inferenceClient.LoadLabels(ctx); err != nil {
		return nil, err
	}
	return inferenceClient, nil
}
