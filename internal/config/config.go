package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"plant-detector-go/internal/detector/yolo"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Config структура конфигурации приложения
type Config struct {
	Environment string

	Server struct {
		Port int    `validate:"min=1,max=65535"`
		Host string `validate:"required"`
	}
	GRPC struct {
		HealthPort int `validate:"min=0,max=65535"` // 0 - сервер не запускается
	}
	Model struct {
		Backend        string `validate:"oneof=onnx remote"`
		Path           string `validate:"required_if=Backend onnx"`
		LabelsPath     string
		RuntimeLibPath string
		InputSize      int     `validate:"min=32"`
		Confidence     float64 `validate:"gte=0,lte=1"`
		IoU            float64 `validate:"gte=0,lte=1"`
		MaxDetections  int     `validate:"min=1"`
		IntraOpThreads int     `validate:"min=0"`
		InterOpThreads int     `validate:"min=0"`
	}
	InferenceAPI struct {
		BaseURL string `validate:"omitempty,url"`
		Timeout int    `validate:"min=1"` // в секундах
	}
	Upload struct {
		TempDir string
	}
	Logging struct {
		Level  string `validate:"oneof=panic fatal error warn warning info debug trace"`
		Format string `validate:"oneof=json text"`
		File   string
	}
}

// LoadConfig загружает конфигурацию из переменных окружения.
// Файл .env (или ENV_FILE) читается, если существует, и не перекрывает уже заданные переменные.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env файла: %w", err)
	}

	cfg := &Config{}
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	// Конфигурация сервера
	cfg.Server.Port = getEnvInt("SERVER_PORT", 8000)
	cfg.Server.Host = getEnv("SERVER_HOST", "127.0.0.1")
	cfg.GRPC.HealthPort = getEnvInt("GRPC_HEALTH_PORT", 0)

	// Конфигурация модели
	defaults := yolo.DefaultConfig()
	cfg.Model.Backend = getEnv("DETECTOR_BACKEND", BackendONNX)
	cfg.Model.Path = getEnv("MODEL_PATH", "")
	cfg.Model.LabelsPath = getEnv("MODEL_LABELS_PATH", "")
	cfg.Model.RuntimeLibPath = getEnv("ONNXRUNTIME_LIB_PATH", "")
	cfg.Model.InputSize = getEnvInt("MODEL_INPUT_SIZE", defaults.InputSize)
	cfg.Model.Confidence = getEnvFloat("MODEL_CONFIDENCE", float64(defaults.ConfidenceThreshold))
	cfg.Model.IoU = getEnvFloat("MODEL_IOU", float64(defaults.IoUThreshold))
	cfg.Model.MaxDetections = getEnvInt("MODEL_MAX_DETECTIONS", defaults.MaxDetections)
	cfg.Model.IntraOpThreads = getEnvInt("MODEL_INTRA_OP_THREADS", 0)
	cfg.Model.InterOpThreads = getEnvInt("MODEL_INTER_OP_THREADS", 0)

	// Конфигурация сервиса инференса
	cfg.InferenceAPI.BaseURL = getEnv("INFERENCE_API_BASE_URL", "http://localhost:5000")
	cfg.InferenceAPI.Timeout = getEnvInt("INFERENCE_API_TIMEOUT_SECONDS", 60)

	cfg.Upload.TempDir = getEnv("UPLOAD_TEMP_DIR", os.TempDir())

	// Конфигурация логирования
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnv("LOG_FORMAT", "json")
	cfg.Logging.File = getEnv("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("неверная конфигурация: %w", err)
	}
	return nil
}

// IsProduction сообщает, запущен ли сервис в production окружении
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Address адрес HTTP сервера host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// GRPCAddress адрес gRPC сервера проверки здоровья
func (c *Config) GRPCAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.GRPC.HealthPort))
}

// InferenceTimeout таймаут запросов к сервису инференса
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceAPI.Timeout) * time.Second
}

// YOLOConfig параметры ONNX модели
func (c *Config) YOLOConfig() yolo.Config {
	return yolo.Config{
		ModelPath:           c.Model.Path,
		LabelsPath:          c.Model.LabelsPath,
		SharedLibraryPath:   c.Model.RuntimeLibPath,
		InputSize:           c.Model.InputSize,
		ConfidenceThreshold: float32(c.Model.Confidence),
		IoUThreshold:        float32(c.Model.IoU),
		MaxDetections:       c.Model.MaxDetections,
		IntraOpThreads:      c.Model.IntraOpThreads,
		InterOpThreads:      c.Model.InterOpThreads,
	}
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает int значение переменной окружения или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает float значение переменной окружения или возвращает значение по умолчанию
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
