// Package classifier adapts a loaded model runtime into a labeled top-1 image classifier.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// Classifier owns one loaded model and the fixed class list it was trained on.
// It is created once at startup and shared by all requests.
//
// Both supported runtimes run inference against tensors allocated once at load
// time, so calls into the backend are serialized with mu. Tensor encoding and
// score selection happen outside the lock.
type Classifier struct {
	backend models.ModelBackend
	labels  []string
	spec    models.InputSpec
	probs   bool

	mu     sync.Mutex
	closed bool
}

// New wraps backend with labels. The label order must match the model's output order.
func New(backend models.ModelBackend, labels []string) (*Classifier, error) {
	if backend == nil {
		return nil, ErrModelUnavailable
	}
	if len(labels) == 0 {
		return nil, errors.New("at least one class label is required")
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" {
			return nil, errors.New("class labels must not be empty")
		}
		if seen[l] {
			return nil, fmt.Errorf("duplicate class label %q", l)
		}
		seen[l] = true
	}
	if n := backend.OutputSize(); n > 0 && n != len(labels) {
		return nil, fmt.Errorf("%w: model has %d outputs, %d labels configured", ErrShapeMismatch, n, len(labels))
	}

	spec := backend.InputSpec()
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("%w: model input size %dx%d", ErrShapeMismatch, spec.Width, spec.Height)
	}

	c := &Classifier{
		backend: backend,
		labels:  append([]string(nil), labels...),
		spec:    spec,
	}
	if po, ok := backend.(models.ProbabilityOutput); ok {
		c.probs = po.OutputsProbabilities()
	}
	return c, nil
}

// Labels returns a copy of the class list in model output order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Backend returns the runtime name, e.g. "tflite".
func (c *Classifier) Backend() string {
	return c.backend.Name()
}

// InputSpec returns the tensor shape images are resized to.
func (c *Classifier) InputSpec() models.InputSpec {
	return c.spec
}

// Classify runs one forward pass over img and returns the most probable class.
// Any runtime failure is reported as ErrClassification.
func (c *Classifier) Classify(ctx context.Context, img image.Image) (models.Prediction, error) {
	if c == nil {
		return models.Prediction{}, ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	input, err := EncodeTensor(img, c.spec)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: encode input: %v", ErrClassification, err)
	}

	scores, err := c.infer(input)
	if err != nil {
		return models.Prediction{}, err
	}

	pred, err := selectTop(scores, c.labels, c.probs)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	return pred, nil
}

func (c *Classifier) infer(input []float32) (scores []float32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrModelUnavailable
	}

	// cgo runtimes occasionally panic on malformed tensors; keep that inside
	// the request that triggered it.
	defer func() {
		if r := recover(); r != nil {
			scores, err = nil, fmt.Errorf("%w: runtime panic: %v", ErrClassification, r)
		}
	}()

	scores, err = c.backend.Infer(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s inference: %v", ErrClassification, c.backend.Name(), err)
	}
	return scores, nil
}

// Close releases the model. Later Classify calls return ErrModelUnavailable.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.backend.Close()
}
