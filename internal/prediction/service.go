// Package prediction runs the upload → classify → persist pipeline and
// serves prediction history.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AhmAshraf1/PlanTech/internal/cache"
	"github.com/AhmAshraf1/PlanTech/internal/classifier"
	"github.com/AhmAshraf1/PlanTech/internal/imaging"
	"github.com/AhmAshraf1/PlanTech/internal/metrics"
	"github.com/AhmAshraf1/PlanTech/internal/store"
	"github.com/AhmAshraf1/PlanTech/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrInputMissing = errors.New("input missing")
	ErrNoImage      = fmt.Errorf("%w: no image uploaded", ErrInputMissing)
	ErrNoFilename   = fmt.Errorf("%w: no file selected", ErrInputMissing)
	ErrArtifact     = errors.New("image could not be stored")
	ErrPersistence  = errors.New("prediction could not be stored")
)

const (
	DefaultHistoryCap = 50
	DefaultCacheTTL   = 30 * time.Second

	historyGenerationTTL = 24 * time.Hour
)

// ImageStore persists uploaded image artifacts.
type ImageStore interface {
	Save(id uuid.UUID, original string, data []byte) (string, error)
	Exists() bool
}

// Options configures a Service. Images and Store are required.
type Options struct {
	Classifier *classifier.Classifier // nil when the model failed to load
	Images     ImageStore
	Store      store.Store
	Cache      cache.Cache // optional
	Metrics    *metrics.Metrics

	// AdvisoryPersistence makes a failed append non-fatal to Predict.
	AdvisoryPersistence bool
	HistoryCap          int
	MaxPixels           int
	CacheTTL            time.Duration

	Now   func() time.Time
	NewID func() uuid.UUID
}

// Upload is one image received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Result is the outcome of a successful Predict call. Persisted is false when
// the record could not be appended under advisory persistence.
type Result struct {
	Record    models.PredictionRecord
	Persisted bool
}

// Status reports component readiness.
type Status struct {
	ModelLoaded         bool
	StoreReachable      bool
	UploadsFolderExists bool
}

// Service orchestrates a single prediction per call. It is safe for concurrent use.
type Service struct {
	classifier *classifier.Classifier
	images     ImageStore
	store      store.Store
	cache      cache.Cache
	metrics    *metrics.Metrics

	advisory   bool
	historyCap int
	maxPixels  int
	cacheTTL   time.Duration
	now        func() time.Time
	newID      func() uuid.UUID

	mu   sync.Mutex
	last time.Time

	// generation counts successful appends in this process; it is part of
	// every cached history key.
	generation atomic.Uint64
}

// NewService validates opts and fills in defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Images == nil {
		return nil, errors.New("image store is required")
	}
	if opts.Store == nil {
		return nil, errors.New("prediction store is required")
	}

	s := &Service{
		classifier: opts.Classifier,
		images:     opts.Images,
		store:      opts.Store,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		advisory:   opts.AdvisoryPersistence,
		historyCap: opts.HistoryCap,
		maxPixels:  opts.MaxPixels,
		cacheTTL:   opts.CacheTTL,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.historyCap <= 0 {
		s.historyCap = DefaultHistoryCap
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	s.metrics.SetModelLoaded(s.classifier != nil)
	return s, nil
}

// Predict validates, stores and classifies up, then appends the resulting record.
// A nil up means no image was sent at all.
func (s *Service) Predict(ctx context.Context, up *Upload) (*Result, error) {
	if s.classifier == nil {
		s.metrics.RecordFailure(metrics.StageModel)
		return nil, classifier.ErrModelUnavailable
	}
	switch {
	case up == nil:
		s.metrics.RecordFailure(metrics.StageInput)
		return nil, ErrNoImage
	case up.Filename == "":
		s.metrics.RecordFailure(metrics.StageInput)
		return nil, ErrNoFilename
	case len(up.Data) == 0:
		s.metrics.RecordFailure(metrics.StageInput)
		return nil, ErrNoImage
	}

	id := s.newID()

	img, err := imaging.Normalize(up.Data, s.maxPixels)
	if err != nil {
		s.metrics.RecordFailure(metrics.StageDecode)
		return nil, err
	}

	name, err := s.images.Save(id, up.Filename, up.Data)
	if err != nil {
		slog.Error("failed to save upload", "id", id, "error", err)
		s.metrics.RecordFailure(metrics.StageArtifact)
		return nil, fmt.Errorf("%w: %v", ErrArtifact, err)
	}

	start := time.Now()
	pred, err := s.classifier.Classify(ctx, img)
	if err != nil {
		slog.Error("classification failed", "id", id, "image", name, "error", err)
		s.metrics.RecordFailure(metrics.StageClassify)
		return nil, err
	}
	s.metrics.RecordPrediction(s.classifier.Backend(), pred.Label, time.Since(start).Seconds())

	rec := models.PredictionRecord{
		ID:              id,
		StoredImageName: name,
		Label:           pred.Label,
		Confidence:      pred.Confidence,
		CreatedAt:       s.stamp(),
	}

	// The classification already happened; a caller that went away still gets its row.
	if err := s.store.Append(context.WithoutCancel(ctx), &rec); err != nil {
		s.metrics.RecordPersistenceFailure()
		if !s.advisory {
			s.metrics.RecordFailure(metrics.StagePersist)
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		slog.Warn("prediction not persisted", "id", id, "error", err)
		return &Result{Record: rec}, nil
	}

	s.bumpHistoryGeneration(ctx)
	return &Result{Record: rec, Persisted: true}, nil
}

// History returns up to limit records, newest first. A limit outside
// [1, HistoryCap] is treated as HistoryCap.
func (s *Service) History(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	if limit <= 0 || limit > s.historyCap {
		limit = s.historyCap
	}

	// The key is fixed before the store is read: a page read while an append
	// lands is written under a generation no later call looks up.
	key, cacheable := s.historyKey(ctx)
	if cacheable {
		if recs, ok := s.cachedHistory(ctx, key); ok {
			return head(recs, limit), nil
		}
	}

	recs, err := s.store.ListRecent(ctx, s.historyCap)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.storeHistory(ctx, key, recs)
	}
	return head(recs, limit), nil
}

// Status checks each component.
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		ModelLoaded:         s.classifier != nil,
		StoreReachable:      s.store.Ping(ctx) == nil,
		UploadsFolderExists: s.images.Exists(),
	}
}

// stamp returns the current UTC time at microsecond precision, never earlier
// than a previously issued stamp.
func (s *Service) stamp() time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}

// historyKey returns the cache key for the current generation. It reports
// false when there is no cache or the shared generation cannot be read.
func (s *Service) historyKey(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	raw, found, err := s.cache.Get(ctx, cache.HistoryGenerationKey)
	if err != nil {
		slog.Warn("history generation read failed", "error", err)
		return "", false
	}
	shared := "0"
	if found {
		shared = string(raw)
	}
	return cache.HistoryKey(shared, s.generation.Load()), true
}

func (s *Service) cachedHistory(ctx context.Context, key string) ([]models.PredictionRecord, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("history cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var recs []models.PredictionRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		slog.Warn("history cache entry corrupt", "error", err)
		return nil, false
	}
	if recs == nil {
		recs = []models.PredictionRecord{}
	}
	return recs, true
}

func (s *Service) storeHistory(ctx context.Context, key string, recs []models.PredictionRecord) {
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		slog.Warn("history cache write failed", "error", err)
	}
}

// bumpHistoryGeneration retires every cached history page. The local counter
// always moves; the shared one lets other processes on the same cache follow.
func (s *Service) bumpHistoryGeneration(ctx context.Context) {
	s.generation.Add(1)
	if s.cache == nil {
		return
	}
	if _, err := s.cache.IncrWithExpiry(context.WithoutCancel(ctx), cache.HistoryGenerationKey, historyGenerationTTL); err != nil {
		slog.Warn("history generation bump failed", "error", err)
	}
}

func head(recs []models.PredictionRecord, n int) []models.PredictionRecord {
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}
