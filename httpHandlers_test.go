package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"frog-classifier/frog"
	"frog-classifier/models"
	"frog-classifier/service"
)

type stubModel struct {
	classes []string
	dim     int
	probs   []float64
}

func (m *stubModel) Classes() []string { return m.classes }
func (m *stubModel) InputDim() int     { return m.dim }

func (m *stubModel) Predict(features []float64) (string, error) {
	if len(features) != m.dim {
		return "", fmt.Errorf("%w: expected %d features, got %d", frog.ErrDimensionMismatch, m.dim, len(features))
	}
	return m.classes[0], nil
}

func (m *stubModel) PredictProba(features []float64) ([]float64, error) {
	if len(features) != m.dim {
		return nil, fmt.Errorf("%w: expected %d features, got %d", frog.ErrDimensionMismatch, m.dim, len(features))
	}
	return m.probs, nil
}

type recordedFeedback struct {
	feedback    []*models.Feedback
	predictions []models.StorageRecord
}

func (r *recordedFeedback) StorePrediction(_ *models.StorageRecord) error { return nil }
func (r *recordedFeedback) Close() error                                  { return nil }

func (r *recordedFeedback) StoreFeedback(f *models.Feedback) error {
	r.feedback = append(r.feedback, f)
	return nil
}

func (r *recordedFeedback) GetRecentPredictions(limit int) ([]models.StorageRecord, error) {
	if limit > 0 && limit < len(r.predictions) {
		return r.predictions[:limit], nil
	}
	return r.predictions, nil
}

func newTestPredictionService() *service.PredictionService {
	model := &stubModel{
		classes: []string{"hyla", "rana", "bufo"},
		dim:     26,
		probs:   []float64{0.7, 0.2, 0.1},
	}
	inference := &service.InferenceContext{
		Adapter:      frog.NewAdapter(model, nil),
		FeatureOrder: frog.FeatureNames(),
	}
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return service.NewPredictionService(inference, nil, false, logger)
}

func decodeError(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var apiErr apiError
	if err := json.NewDecoder(body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return apiErr.Message
}

func TestPredictHandlerReturnsPrediction(t *testing.T) {
	t.Parallel()

	handler := newPredictHandler(newTestPredictionService())

	payload, _ := json.Marshal(models.PredictionRequest{Features: make([]float64, 26)})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response models.PredictionResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Prediction != "hyla" {
		t.Fatalf("expected hyla, got %s", response.Prediction)
	}
	if len(response.Top3) != 3 {
		t.Fatalf("expected top-3 list, got %d entries", len(response.Top3))
	}
	if response.Filename != "" {
		t.Fatal("vector prediction response must not carry a filename")
	}
}

func TestPredictHandlerShortVector(t *testing.T) {
	t.Parallel()

	handler := newPredictHandler(newTestPredictionService())

	payload, _ := json.Marshal(models.PredictionRequest{Features: make([]float64, 10)})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	message := decodeError(t, rec.Body)
	if !strings.Contains(message, "expected 26 features, got 10") {
		t.Fatalf("error should name both dimensions: %s", message)
	}
}

func TestPredictHandlerRejectsBadJSON(t *testing.T) {
	t.Parallel()

	handler := newPredictHandler(newTestPredictionService())

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPredictHandlerMethodNotAllowed(t *testing.T) {
	t.Parallel()

	handler := newPredictHandler(newTestPredictionService())

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, filename string, contents []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(contents)
	writer.Close()
	return &body, writer.FormDataContentType()
}

func TestPredictAudioHandlerRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	handler := newPredictAudioHandler(newTestPredictionService())

	body, contentType := multipartUpload(t, "picture.bmp", []byte{0x42, 0x4d, 0x00})
	req := httptest.NewRequest(http.MethodPost, "/predict-audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	message := decodeError(t, rec.Body)
	if !strings.Contains(message, ".wav") || !strings.Contains(message, ".mp3") {
		t.Fatalf("error should list the supported formats: %s", message)
	}
}

func TestPredictAudioHandlerRequiresFile(t *testing.T) {
	t.Parallel()

	handler := newPredictAudioHandler(newTestPredictionService())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("note", "no file here")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict-audio", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFeedbackHandlerStoresFeedback(t *testing.T) {
	t.Parallel()

	records := &recordedFeedback{}
	handler := newFeedbackHandler(records)

	payload, _ := json.Marshal(models.Feedback{
		Filename:         "20250101_000000_hyla_0.70_abcd1234.wav",
		PredictedSpecies: "hyla",
		ActualSpecies:    "rana",
		Confidence:       0.7,
	})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(records.feedback) != 1 {
		t.Fatalf("expected 1 feedback row, got %d", len(records.feedback))
	}
	if records.feedback[0].Timestamp.IsZero() {
		t.Fatal("feedback timestamp should be set server-side")
	}
}

func TestFeedbackHandlerValidation(t *testing.T) {
	t.Parallel()

	handler := newFeedbackHandler(&recordedFeedback{})

	payload, _ := json.Marshal(models.Feedback{PredictedSpecies: "hyla"})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFeedbackHandlerWithoutStore(t *testing.T) {
	t.Parallel()

	handler := newFeedbackHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPredictionsHandlerListsRecords(t *testing.T) {
	t.Parallel()

	records := &recordedFeedback{
		predictions: []models.StorageRecord{
			{Filename: "20250101_000000_hyla_0.70_abcd1234.wav", Prediction: "hyla"},
			{Filename: "20250101_000100_rana_0.60_ef567890.wav", Prediction: "rana"},
		},
	}
	handler := newPredictionsHandler(records)

	req := httptest.NewRequest(http.MethodGet, "/predictions?limit=1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Predictions []models.StorageRecord `json:"predictions"`
		Count       int                    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 1 || len(body.Predictions) != 1 {
		t.Fatalf("expected 1 record, got count=%d len=%d", body.Count, len(body.Predictions))
	}
	if body.Predictions[0].Prediction != "hyla" {
		t.Fatalf("unexpected record: %+v", body.Predictions[0])
	}
}

func TestPredictionsHandlerValidatesLimit(t *testing.T) {
	t.Parallel()

	handler := newPredictionsHandler(&recordedFeedback{})

	req := httptest.NewRequest(http.MethodGet, "/predictions?limit=0", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPredictionsHandlerWithoutStore(t *testing.T) {
	t.Parallel()

	handler := newPredictionsHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/predictions", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	handler := newHealthHandler(newTestPredictionService())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestLoadFeatureOrderDegradation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, contents string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}

	good := write("order.json", `["a", "b", "c"]`)
	if order := loadFeatureOrder(good, 3); len(order) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(order))
	}

	// A length mismatch disables the audio path instead of killing the
	// server; vector serving stays up.
	if order := loadFeatureOrder(good, 26); order != nil {
		t.Fatalf("mismatched length should yield nil, got %v", order)
	}
	if order := loadFeatureOrder(filepath.Join(dir, "missing.json"), 3); order != nil {
		t.Fatalf("missing file should yield nil, got %v", order)
	}
}

func TestPathFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{"/audio/recording.wav", "recording.wav", true},
		{"/audio/", "", false},
		{"/audio/../secrets", "", false},
		{"/audio/a/b.wav", "", false},
	}
	for _, c := range cases {
		got, ok := pathFilename(c.path, "/audio/")
		if ok != c.ok || got != c.want {
			t.Errorf("pathFilename(%q) = (%q, %v), want (%q, %v)", c.path, got, ok, c.want, c.ok)
		}
	}
}
