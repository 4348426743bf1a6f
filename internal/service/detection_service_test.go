package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"plant-detector-go/internal/detector"
	"plant-detector-go/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector читает сохраненный файл и отдает его содержимое как имя класса
type stubDetector struct {
	mu      sync.Mutex
	paths   []string
	err     error
	records []models.DetectionRecord
	// removeInput удаляет файл до возврата, чтобы release не смог его удалить
	removeInput bool
}

func (d *stubDetector) Detect(_ context.Context, imagePath string) ([]models.DetectionRecord, error) {
	d.mu.Lock()
	d.paths = append(d.paths, imagePath)
	d.mu.Unlock()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	if d.removeInput {
		if err := os.Remove(imagePath); err != nil {
			return nil, err
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.records != nil {
		return d.records, nil
	}
	return []models.DetectionRecord{{ClassName: string(data)}}, nil
}

func (d *stubDetector) Loaded() bool { return true }

func (d *stubDetector) lastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paths[len(d.paths)-1]
}

func newTestService(t *testing.T, det Detector) (*DetectionService, string) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dir := t.TempDir()
	return NewDetectionService(det, dir, logger), dir
}

func TestDetectObjectsRemovesTempFileOnSuccess(t *testing.T) {
	det := &stubDetector{}
	svc, dir := newTestService(t, det)

	resp, err := svc.DetectObjects(context.Background(), strings.NewReader("leaf"), "leaf.png")
	require.NoError(t, err)
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, "leaf", resp.Detections[0].ClassName)

	path := det.lastPath()
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "temp_"))
	assert.Equal(t, ".png", filepath.Ext(path))
	assert.NoFileExists(t, path)
}

func TestDetectObjectsRemovesTempFileOnFailure(t *testing.T) {
	det := &stubDetector{err: errors.New("model exploded")}
	svc, dir := newTestService(t, det)

	_, err := svc.DetectObjects(context.Background(), strings.NewReader("leaf"), "leaf.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInferenceFailure))
	assert.Contains(t, err.Error(), "model exploded")

	assert.NoFileExists(t, det.lastPath())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectObjectsCleanupFailureKeepsResult(t *testing.T) {
	logger, hook := test.NewNullLogger()
	det := &stubDetector{removeInput: true}
	svc := NewDetectionService(det, t.TempDir(), logger)

	resp, err := svc.DetectObjects(context.Background(), strings.NewReader("leaf"), "leaf.jpg")
	require.NoError(t, err)
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, "leaf", resp.Detections[0].ClassName)

	var warnings []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry)
		}
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, det.lastPath())
}

func TestDetectObjectsDecodeFailure(t *testing.T) {
	det := &stubDetector{err: fmt.Errorf("%w: unknown format", detector.ErrImageDecode)}
	svc, _ := newTestService(t, det)

	_, err := svc.DetectObjects(context.Background(), strings.NewReader("garbage"), "x.jpg")
	assert.True(t, errors.Is(err, ErrDecodeFailure))
	assert.False(t, errors.Is(err, ErrInferenceFailure))
	assert.NoFileExists(t, det.lastPath())
}

func TestDetectObjectsEmptyUpload(t *testing.T) {
	det := &stubDetector{}
	svc, dir := newTestService(t, det)

	_, err := svc.DetectObjects(context.Background(), bytes.NewReader(nil), "empty.jpg")
	assert.True(t, errors.Is(err, ErrBadUpload))
	assert.Empty(t, det.paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectObjectsNilUpload(t *testing.T) {
	svc, _ := newTestService(t, &stubDetector{})

	_, err := svc.DetectObjects(context.Background(), nil, "")
	assert.True(t, errors.Is(err, ErrBadUpload))
}

func TestDetectObjectsStagingFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewDetectionService(&stubDetector{}, filepath.Join(t.TempDir(), "missing"), logger)

	_, err := svc.DetectObjects(context.Background(), strings.NewReader("leaf"), "leaf.jpg")
	assert.True(t, errors.Is(err, ErrStaging))
}

func TestDetectObjectsEmptyDetections(t *testing.T) {
	svc, _ := newTestService(t, &stubDetector{records: []models.DetectionRecord{}})

	resp, err := svc.DetectObjects(context.Background(), strings.NewReader("leaf"), "leaf.jpg")
	require.NoError(t, err)
	assert.NotNil(t, resp.Detections)
	assert.Empty(t, resp.Detections)
}

func TestDetectObjectsIgnoresCancellation(t *testing.T) {
	svc, _ := newTestService(t, &stubDetector{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.DetectObjects(ctx, strings.NewReader("leaf"), "leaf.jpg")
	assert.NoError(t, err)
}

func TestDetectObjectsConcurrentRequestsDoNotInterfere(t *testing.T) {
	det := &stubDetector{}
	svc, dir := newTestService(t, det)

	const n = 32
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.DetectObjects(context.Background(), strings.NewReader(fmt.Sprintf("image-%d", i)), "x.jpg")
			errs[i] = err
			if err == nil {
				results[i] = resp.Detections[0].ClassName
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("image-%d", i), results[i])
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckHealth(t *testing.T) {
	svc, _ := newTestService(t, &stubDetector{})

	health := svc.CheckHealth()
	assert.Equal(t, "online", health.Status)
	assert.Equal(t, "Object Detection API running", health.Message)
	assert.True(t, health.ModelLoaded)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	assert.False(t, NewDetectionService(nil, "", logger).CheckHealth().ModelLoaded)
}

func TestUploadExt(t *testing.T) {
	assert.Equal(t, ".png", uploadExt("frame.PNG"))
	assert.Equal(t, ".webp", uploadExt("a.webp"))
	assert.Equal(t, ".jpg", uploadExt("blob"))
	assert.Equal(t, ".jpg", uploadExt("../../etc/passwd.sh"))
}
