package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"plant-detector-go/internal/detector"

	"github.com/sirupsen/logrus"
)

// InferenceClient клиент для Python сервиса с моделью.
// Реализует detector.Model, пересылая сохраненный файл в сервис.
type InferenceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	labels     detector.LabelTable
}

// predictResponse ответ сервиса на POST /predict
type predictResponse struct {
	Boxes []struct {
		XYXY [4]float32 `json:"xyxy"`
		Conf float32    `json:"conf"`
		Cls  int        `json:"cls"`
	} `json:"boxes"`
}

// labelsResponse ответ сервиса на GET /labels
type labelsResponse struct {
	Names map[string]string `json:"names"`
}

// NewInferenceClient создает новый клиент для сервиса инференса
func NewInferenceClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *InferenceClient {
	return &InferenceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetLabels задает таблицу меток, например из локального файла
func (c *InferenceClient) SetLabels(labels detector.LabelTable) {
	c.labels = labels
}

// LoadLabels запрашивает таблицу меток у сервиса
func (c *InferenceClient) LoadLabels(ctx context.Context) error {
	c.logger.Debug("Запрос таблицы меток у сервиса инференса")

	respBody, err := c.get(ctx, "/labels")
	if err != nil {
		return err
	}

	var apiResponse labelsResponse
	if err := json.Unmarshal(respBody, &apiResponse); err != nil {
		return fmt.Errorf("ошибка парсинга JSON ответа: %w", err)
	}

	names := make(map[int]string, len(apiResponse.Names))
	for key, name := range apiResponse.Names {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("неверный индекс класса %q: %w", key, err)
		}
		names[idx] = name
	}

	labels, err := detector.LabelsFromMap(names)
	if err != nil {
		return err
	}

	c.labels = labels
	c.logger.Infof("Получено %d классов от сервиса инференса", labels.Len())
	return nil
}

// Predict отправляет изображение на детекцию
func (c *InferenceClient) Predict(ctx context.Context, imagePath string) ([]detector.Box, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия изображения: %w", err)
	}
	defer file.Close()

	// Тело пишется в pipe, чтобы не держать изображение в памяти целиком
	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(imagePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	url := fmt.Sprintf("%s/predict", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.Debugf("Отправка POST запроса на %s", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: сервис инференса: %s", detector.ErrImageDecode, string(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("сервис инференса вернул ошибку: статус %d, тело: %s", resp.StatusCode, string(respBody))
	}

	var apiResponse predictResponse
	if err := json.Unmarshal(respBody, &apiResponse); err != nil {
		return nil, fmt.Errorf("ошибка парсинга JSON ответа: %w", err)
	}

	boxes := make([]detector.Box, 0, len(apiResponse.Boxes))
	for _, b := range apiResponse.Boxes {
		boxes = append(boxes, detector.Box{
			X1:      b.XYXY[0],
			Y1:      b.XYXY[1],
			X2:      b.XYXY[2],
			Y2:      b.XYXY[3],
			Score:   b.Conf,
			ClassID: b.Cls,
		})
	}

	return boxes, nil
}

// Labels возвращает таблицу меток модели сервиса
func (c *InferenceClient) Labels() detector.LabelTable {
	return c.labels
}

// CheckHealth проверяет состояние сервиса инференса
func (c *InferenceClient) CheckHealth(ctx context.Context) error {
	c.logger.Debug("Проверка здоровья сервиса инференса")

	_, err := c.get(ctx, "/health")
	return err
}

// Close закрывает простаивающие соединения
func (c *InferenceClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *InferenceClient) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("сервис инференса вернул ошибку: статус %d, тело: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
