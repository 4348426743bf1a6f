package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "адрес API сервера")
	endpoint := flag.String("endpoint", "/detect/", "эндпоинт детекции: /detect/ или /predict/")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Minute}

	// Проверяем health endpoint
	fmt.Println("Проверяем health endpoint...")
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("Ошибка при обращении к health endpoint: %v\n", err)
		os.Exit(1)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		fmt.Printf("Ошибка чтения ответа: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Health check ответ (статус %d):\n%s\n\n", resp.StatusCode, string(body))

	// Если передано изображение, отправляем его на детекцию
	if flag.NArg() == 0 {
		fmt.Println("Для проверки детекции запустите: client [-url URL] <путь_к_изображению>")
		return
	}

	for _, imagePath := range flag.Args() {
		fmt.Printf("Отправляем изображение %s на детекцию...\n", imagePath)
		if err := detect(client, *baseURL+*endpoint, imagePath); err != nil {
			fmt.Printf("Ошибка при детекции: %v\n", err)
			os.Exit(1)
		}
	}
}

func detect(client *http.Client, url, imagePath string) error {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("ошибка чтения изображения: %w", err)
	}

	// Создаем multipart form
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("ошибка создания form field: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return fmt.Errorf("ошибка записи изображения: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка формирования формы: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	fmt.Printf("Ответ (статус %d, %s):\n%s\n\n", resp.StatusCode, time.Since(start).Round(time.Millisecond), string(respBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер вернул статус %d", resp.StatusCode)
	}
	return nil
}
