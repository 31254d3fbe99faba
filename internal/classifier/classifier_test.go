package classifier_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/AhmAshraf1/PlanTech/internal/classifier"
	"github.com/AhmAshraf1/PlanTech/internal/classifier/mock"
	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNew_Validation(t *testing.T) {
	_, err := classifier.New(nil, plantLabels)
	assert.ErrorIs(t, err, classifier.ErrModelUnavailable)

	_, err = classifier.New(mock.NewFixedBackend([]float32{1, 0, 0, 0, 0}), nil)
	assert.Error(t, err)

	_, err = classifier.New(mock.NewFixedBackend([]float32{1, 0}), []string{"Rust", "Rust"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = classifier.New(mock.NewFixedBackend([]float32{1, 0, 0}), plantLabels)
	assert.ErrorIs(t, err, classifier.ErrShapeMismatch)

	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	b.Spec.Width = 0
	_, err = classifier.New(b, plantLabels)
	assert.ErrorIs(t, err, classifier.ErrShapeMismatch)
}

func TestClassify_ReturnsLabelAndConfidence(t *testing.T) {
	c, err := classifier.New(mock.NewFixedBackend([]float32{0.1, 0.1, 0.1, 0.6, 0.1}), plantLabels)
	require.NoError(t, err)

	pred, err := c.Classify(context.Background(), solidImage(32, 32, color.White))
	require.NoError(t, err)
	assert.Equal(t, "Slug", pred.Label)
	assert.InDelta(t, 0.6, pred.Confidence, 1e-6)
}

func TestClassify_ProbabilityBackendSkipsSoftmax(t *testing.T) {
	scores := []float32{0.02, 0.85, 0.02, 0.02, 0.02}

	b := mock.NewFixedBackend(scores)
	b.Probs = true
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	pred, err := c.Classify(context.Background(), solidImage(8, 8, color.White))
	require.NoError(t, err)
	assert.Equal(t, "Powdery", pred.Label)
	assert.InDelta(t, 0.85, pred.Confidence, 1e-6)

	// Without the flag the same vector reads as logits.
	c2, err := classifier.New(mock.NewFixedBackend(scores), plantLabels)
	require.NoError(t, err)
	pred, err = c2.Classify(context.Background(), solidImage(8, 8, color.White))
	require.NoError(t, err)
	assert.Equal(t, "Powdery", pred.Label)
	assert.Less(t, pred.Confidence, 0.85)
}

func TestClassify_AlwaysInClassSetAndRange(t *testing.T) {
	c, err := classifier.New(mock.NewBrightnessBackend(len(plantLabels)), plantLabels)
	require.NoError(t, err)

	for _, v := range []uint8{0, 1, 64, 128, 200, 255} {
		pred, err := c.Classify(context.Background(), solidImage(20, 10, color.RGBA{v, v, v, 255}))
		require.NoError(t, err)
		assert.Contains(t, plantLabels, pred.Label)
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
	}
}

func TestClassify_PassesEncodedInput(t *testing.T) {
	var got []float32
	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	b.InferFunc = func(input []float32) ([]float32, error) {
		got = input
		return []float32{1, 0, 0, 0, 0}, nil
	}
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), solidImage(3, 3, color.RGBA{255, 0, 0, 255}))
	require.NoError(t, err)

	require.Len(t, got, mock.DefaultSpec.Len())
	assert.InDelta(t, 1.0, got[0], 1e-6)
	assert.InDelta(t, 0.0, got[1], 1e-6)
}

func TestClassify_BackendErrorIsClassificationError(t *testing.T) {
	c, err := classifier.New(mock.NewFailingBackend(len(plantLabels), errors.New("boom")), plantLabels)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrClassification)
	assert.ErrorContains(t, err, "boom")
}

func TestClassify_BackendPanicIsClassificationError(t *testing.T) {
	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	b.InferFunc = func(_ []float32) ([]float32, error) { panic("tensor overflow") }
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrClassification)

	// The lock was released; the classifier still works afterwards.
	b.InferFunc = func(_ []float32) ([]float32, error) { return []float32{0, 1, 0, 0, 0}, nil }
	pred, err := c.Classify(context.Background(), solidImage(4, 4, color.Black))
	require.NoError(t, err)
	assert.Equal(t, "Powdery", pred.Label)
}

func TestClassify_NaNScoresIsClassificationError(t *testing.T) {
	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	b.InferFunc = func(_ []float32) ([]float32, error) {
		var zero float32
		return []float32{zero / zero, 0, 0, 0, 0}, nil
	}
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrClassification)
	assert.ErrorIs(t, err, classifier.ErrInvalidScores)
}

func TestClassify_NilClassifierIsUnavailable(t *testing.T) {
	var c *classifier.Classifier
	_, err := c.Classify(context.Background(), solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrModelUnavailable)
}

func TestClassify_CancelledContext(t *testing.T) {
	c, err := classifier.New(mock.NewFixedBackend([]float32{1, 0, 0, 0, 0}), plantLabels)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Classify(ctx, solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrClassification)
}

func TestClassify_AfterCloseIsUnavailable(t *testing.T) {
	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), b.CloseCalls.Load())

	_, err = c.Classify(context.Background(), solidImage(4, 4, color.Black))
	assert.ErrorIs(t, err, classifier.ErrModelUnavailable)
}

func TestClassify_SerializesBackendCalls(t *testing.T) {
	var inFlight, maxInFlight int
	var mu sync.Mutex
	b := mock.NewFixedBackend([]float32{1, 0, 0, 0, 0})
	b.InferFunc = func(_ []float32) ([]float32, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		mu.Unlock()
		return []float32{1, 0, 0, 0, 0}, nil
	}
	c, err := classifier.New(b, plantLabels)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Classify(context.Background(), solidImage(4, 4, color.White))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, int32(16), b.InferCalls.Load())
}

func TestLabels_ReturnsCopy(t *testing.T) {
	c, err := classifier.New(mock.NewFixedBackend([]float32{1, 0, 0, 0, 0}), plantLabels)
	require.NoError(t, err)

	labels := c.Labels()
	labels[0] = "Mutated"
	assert.Equal(t, "Healthy", c.Labels()[0])
	assert.Equal(t, "mock", c.Backend())
}

func TestLoad_UnknownBackend(t *testing.T) {
	_, err := classifier.Load(config.ModelConfig{Backend: "caffe", Classes: plantLabels})
	assert.ErrorContains(t, err, "unknown model backend")
}

func TestLoad_MissingModelFile(t *testing.T) {
	_, err := classifier.Load(config.ModelConfig{
		Backend: "tflite",
		Path:    t.TempDir() + "/missing.tflite",
		Classes: plantLabels,
	})
	assert.ErrorContains(t, err, "read tflite model")
}
