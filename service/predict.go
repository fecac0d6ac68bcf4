package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"frog-classifier/frog"
	"frog-classifier/models"
	"frog-classifier/wav"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

// SignedURLTTL is the validity window of download links returned with
// audio predictions.
const SignedURLTTL = 900 * time.Second

// ErrAudioDisabled is returned from the audio pipeline when no canonical
// feature ordering was loaded at startup.
var ErrAudioDisabled = errors.New("audio pipeline disabled: no feature order loaded")

// PredictionService runs the inference pipeline. Classification happens
// synchronously on the request path; persistence of the recording and its
// record is handed to the sink and never blocks the response.
type PredictionService struct {
	inference *InferenceContext
	sink      *Sink
	notifier  Notifier
	logger    *slog.Logger

	saveUploads bool
}

// NewPredictionService wires the service over a loaded inference context.
// The notifier may be nil. saveUploads gates persistence of audio uploads;
// it is also forced off when the context carries no storage backends.
func NewPredictionService(inference *InferenceContext, notifier Notifier, saveUploads bool, logger *slog.Logger) *PredictionService {
	return &PredictionService{
		inference:   inference,
		sink:        NewSink(inference.Objects, inference.Records, logger),
		notifier:    notifier,
		logger:      logger,
		saveUploads: saveUploads && (inference.Objects != nil || inference.Records != nil),
	}
}

// InputDim returns the model's expected feature vector length.
func (s *PredictionService) InputDim() int {
	return s.inference.Adapter.InputDim()
}

// Classes returns the model's label set.
func (s *PredictionService) Classes() []string {
	return s.inference.Adapter.Classes()
}

// AudioEnabled reports whether audio uploads can be classified.
func (s *PredictionService) AudioEnabled() bool {
	return s.inference.FeatureOrder != nil
}

// Sink exposes the persistence sink, mainly so shutdown can drain it.
func (s *PredictionService) Sink() *Sink {
	return s.sink
}

// PredictVector classifies a pre-extracted feature vector. Vector requests
// are never persisted.
func (s *PredictionService) PredictVector(features []float64) (*models.PredictionResponse, error) {
	prediction, ranked, probabilities, err := s.inference.Adapter.PredictTop(features)
	if err != nil {
		return nil, err
	}

	response := &models.PredictionResponse{
		Prediction:    prediction,
		Top3:          toTopPredictions(ranked),
		Probabilities: probabilities,
	}
	s.notify(response)
	return response, nil
}

// PredictAudio runs the full pipeline on an uploaded recording: decode,
// normalize, extract features, classify, then hand the recording to the
// persistence sink. The signed download link is best effort; its absence
// never fails the prediction.
func (s *PredictionService) PredictAudio(ctx context.Context, data []byte, originalFilename string) (*models.PredictionResponse, error) {
	if !s.AudioEnabled() {
		return nil, ErrAudioDisabled
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !wav.SupportedExtension(ext) {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			wav.ErrUnsupportedFormat, ext, strings.Join(wav.SupportedExtensions(), ", "))
	}

	audio, err := wav.Decode(data, ext)
	if err != nil {
		return nil, err
	}

	samples, err := frog.Normalize(audio.Channels, audio.SampleRate, true)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize audio: %w", err)
	}

	features := frog.ExtractFeatures(samples, frog.TargetRate)
	vector, err := frog.OrderFeatures(features, s.inference.FeatureOrder)
	if err != nil {
		return nil, err
	}

	prediction, ranked, probabilities, err := s.inference.Adapter.PredictTop(vector)
	if err != nil {
		return nil, err
	}

	top3 := toTopPredictions(ranked)
	response := &models.PredictionResponse{
		Prediction:    prediction,
		Top3:          top3,
		Probabilities: probabilities,
	}

	if s.saveUploads {
		confidence := 0.0
		if len(top3) > 0 {
			confidence = top3[0].Confidence
		}
		filename := storageKey(prediction, confidence, ext)

		response.Filename = filename
		s.sink.Dispatch(&models.StorageRecord{
			Filename:         filename,
			OriginalFilename: originalFilename,
			Prediction:       prediction,
			Top3:             top3,
			Probabilities:    probabilities,
			Timestamp:        time.Now().UTC(),
		}, data, wav.ContentTypeForExtension(ext))

		if s.inference.Objects != nil {
			url, err := s.inference.Objects.SignedURL(ctx, filename, SignedURLTTL)
			if err != nil {
				s.logger.Warn("failed to create signed url",
					slog.Any("error", xerrors.New(err)),
					slog.String("filename", filename))
			} else {
				response.SignedURL = url
				response.SignedURLExpiresIn = int(SignedURLTTL.Seconds())
			}
		}
	}

	s.notify(response)
	return response, nil
}

func toTopPredictions(ranked []frog.Prediction) []models.TopPrediction {
	if ranked == nil {
		return nil
	}
	top := make([]models.TopPrediction, len(ranked))
	for i, p := range ranked {
		top[i] = models.TopPrediction(p)
	}
	return top
}

func (s *PredictionService) notify(response *models.PredictionResponse) {
	if s.notifier != nil {
		s.notifier.NotifyPrediction(response)
	}
}

// storageKey builds a unique object key for a stored recording. The
// timestamp and label keep keys human-scannable; the random suffix keeps
// concurrent uploads within the same second from colliding.
func storageKey(prediction string, confidence float64, ext string) string {
	stamp := time.Now().UTC().Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%.2f_%s%s", stamp, prediction, confidence, suffix, ext)
}
