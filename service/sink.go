package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"frog-classifier/models"

	"github.com/mdobak/go-xerrors"
)

// persistTimeout bounds each detached persistence attempt so a hung backend
// cannot pin goroutines forever.
const persistTimeout = 30 * time.Second

// Sink persists prediction artifacts off the request path. Dispatch returns
// immediately; a background goroutine uploads the recording and inserts the
// prediction record as two independent effects. Each effect gets one
// attempt, and failures are logged and otherwise dropped. The client's
// response never waits on, or learns about, persistence.
type Sink struct {
	objects ObjectStore
	records RecordStore
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// RecordStore is the slice of the database layer the sink writes to.
type RecordStore interface {
	StorePrediction(record *models.StorageRecord) error
}

// NewSink builds a sink over the given backends. Either may be nil, in
// which case the corresponding effect is skipped.
func NewSink(objects ObjectStore, records RecordStore, logger *slog.Logger) *Sink {
	return &Sink{objects: objects, records: records, logger: logger}
}

// Dispatch schedules persistence of one prediction and returns without
// waiting for it.
func (s *Sink) Dispatch(record *models.StorageRecord, audio []byte, contentType string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.persist(record, audio, contentType)
	}()
}

func (s *Sink) persist(record *models.StorageRecord, audio []byte, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.objects != nil {
		if err := s.objects.Upload(ctx, record.Filename, audio, contentType); err != nil {
			s.logger.Error("failed to upload recording",
				slog.Any("error", xerrors.New(err)),
				slog.String("filename", record.Filename))
		}
	}

	if s.records != nil {
		if err := s.records.StorePrediction(record); err != nil {
			s.logger.Error("failed to store prediction record",
				slog.Any("error", xerrors.New(err)),
				slog.String("filename", record.Filename))
		}
	}
}

// Drain blocks until every dispatched persistence attempt has finished.
// Intended for shutdown and tests.
func (s *Sink) Drain() {
	s.wg.Wait()
}
