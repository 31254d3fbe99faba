package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AhmAshraf1/PlanTech/internal/api"
	"github.com/AhmAshraf1/PlanTech/internal/api/handler"
	mw "github.com/AhmAshraf1/PlanTech/internal/api/middleware"
	"github.com/AhmAshraf1/PlanTech/internal/cache"
	"github.com/AhmAshraf1/PlanTech/internal/classifier"
	"github.com/AhmAshraf1/PlanTech/internal/classifier/mock"
	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/AhmAshraf1/PlanTech/internal/metrics"
	"github.com/AhmAshraf1/PlanTech/internal/prediction"
	"github.com/AhmAshraf1/PlanTech/internal/store"
	"github.com/AhmAshraf1/PlanTech/internal/uploads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub cache that counts rate-limit hits ---

type stubCache struct {
	hits int64
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) Close() error                                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.hits++
	return c.hits, nil
}

var plantLabels = []string{"Healthy", "Powdery", "Rust", "Slug", "Spot"}

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		RateLimit:   mw.NewRateLimit(&stubCache{}, 60),
		CORSOrigins: []string{"http://localhost:5173"},
	})
}

// newFullRouter wires the real service over SQLite, the in-process cache and
// a fixed-score model.
func newFullRouter(t *testing.T, rateLimit int) (http.Handler, store.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	dbCfg := config.DatabaseConfig{URL: "sqlite://" + filepath.Join(dir, "predictions.db")}
	require.NoError(t, store.RunMigrations(dbCfg))
	st, err := store.Open(ctx, dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	images, err := uploads.NewStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	clf, err := classifier.New(mock.NewFixedBackend([]float32{0.05, 0.05, 0.8, 0.05, 0.05}), plantLabels)
	require.NoError(t, err)
	t.Cleanup(func() { clf.Close() })

	m, err := metrics.New()
	require.NoError(t, err)

	c := cache.NewMemoryCache(0)
	svc, err := prediction.NewService(prediction.Options{
		Classifier:          clf,
		Images:              images,
		Store:               st,
		Cache:               c,
		Metrics:             m,
		AdvisoryPersistence: true,
		MaxPixels:           1 << 20,
	})
	require.NoError(t, err)

	return api.NewRouter(api.Dependencies{
		RateLimit:      mw.NewRateLimit(c, rateLimit),
		CORSOrigins:    []string{"*"},
		HealthHandler:  handler.NewHealthHandler(st, c),
		PredictHandler: handler.NewPredictHandler(svc, 1<<20),
		UploadHandler:  handler.NewUploadHandler(images),
		HistoryHandler: handler.NewHistoryHandler(svc),
		DebugDBHandler: handler.NewDebugDBHandler(st),
		TestHandler:    handler.NewTestHandler(svc),
		MetricsHandler: m.Handler(),
	}), st
}

func pngUpload(t *testing.T, filename string) *http.Request {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var raw bytes.Buffer
	require.NoError(t, png.Encode(&raw, img))

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	fw, err := mpw.CreateFormFile(handler.ImageField, filename)
	require.NoError(t, err)
	_, err = fw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func TestRouter_UnwiredEndpointsAreNotImplemented(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/test"},
		{"GET", "/debug/db"},
		{"GET", "/history"},
		{"GET", "/uploads/leaf.jpg"},
		{"POST", "/predict"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{"/nonexistent", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_Preflight(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimitAppliesToPredictOnly(t *testing.T) {
	router, _ := newFullRouter(t, 1)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, pngUpload(t, "leaf.png"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, pngUpload(t, "leaf.png"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/history", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRouter_PredictThenHistory(t *testing.T) {
	router, st := newFullRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, pngUpload(t, "my leaf.png"))
	require.Equal(t, http.StatusOK, w.Code)

	var pred struct {
		ID             string  `json:"id"`
		PredictedClass string  `json:"predicted_class"`
		Confidence     float64 `json:"confidence"`
		ImageURL       string  `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.Equal(t, "Rust", pred.PredictedClass)
	assert.InDelta(t, 0.8, pred.Confidence, 1e-6)
	assert.True(t, strings.HasSuffix(pred.ImageURL, "_my_leaf.png"), pred.ImageURL)

	// The stored artifact is served back unchanged.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", pred.ImageURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/history", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, pred.ID, items[0]["id"])
	assert.Equal(t, "Rust", items[0]["class"])
	assert.Equal(t, pred.ImageURL, items[0]["image_url"])

	diag, err := st.Inspect(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), diag.TotalCount)
}

func TestRouter_DiagnosticEndpoints(t *testing.T) {
	router, _ := newFullRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["model_loaded"])
	assert.Equal(t, true, status["database_exists"])
	assert.Equal(t, true, status["uploads_folder_exists"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/debug/db", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var diag map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diag))
	assert.Equal(t, "predictions.db", diag["database_file"])
	assert.Equal(t, true, diag["table_exists"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "plantech_model_loaded 1")
}

func TestRouter_InvalidImageIsReported(t *testing.T) {
	router, st := newFullRouter(t, 0)

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	fw, err := mpw.CreateFormFile(handler.ImageField, "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("definitely not an image"))
	require.NoError(t, mpw.Close())
	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Prediction failed: ")

	recs, err := st.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
