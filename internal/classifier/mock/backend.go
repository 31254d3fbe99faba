package mock

import (
	"sync/atomic"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// DefaultSpec is a small NHWC input so tests stay fast.
var DefaultSpec = models.InputSpec{Width: 8, Height: 8, Layout: models.LayoutNHWC, Scale: 1.0 / 255.0}

// MockBackend satisfies models.ModelBackend for testing.
type MockBackend struct {
	Name_      string
	Spec       models.InputSpec
	Outputs    int
	InferFunc  func(input []float32) ([]float32, error)
	Probs      bool
	CloseCalls atomic.Int32
	InferCalls atomic.Int32
}

func (m *MockBackend) Name() string                { return m.Name_ }
func (m *MockBackend) InputSpec() models.InputSpec { return m.Spec }
func (m *MockBackend) OutputSize() int             { return m.Outputs }
func (m *MockBackend) OutputsProbabilities() bool  { return m.Probs }

func (m *MockBackend) Infer(input []float32) ([]float32, error) {
	m.InferCalls.Add(1)
	if m.InferFunc != nil {
		return m.InferFunc(input)
	}
	return make([]float32, m.Outputs), nil
}

func (m *MockBackend) Close() error {
	m.CloseCalls.Add(1)
	return nil
}

// NewFixedBackend returns a MockBackend that always produces scores.
func NewFixedBackend(scores []float32) *MockBackend {
	out := append([]float32(nil), scores...)
	return &MockBackend{
		Name_:   "mock",
		Spec:    DefaultSpec,
		Outputs: len(out),
		InferFunc: func(_ []float32) ([]float32, error) {
			return append([]float32(nil), out...), nil
		},
	}
}

// NewFailingBackend returns a MockBackend whose Infer always returns err.
func NewFailingBackend(outputs int, err error) *MockBackend {
	return &MockBackend{
		Name_:   "mock-failing",
		Spec:    DefaultSpec,
		Outputs: outputs,
		InferFunc: func(_ []float32) ([]float32, error) {
			return nil, err
		},
	}
}

// NewBrightnessBackend scores classes by the mean channel value of the input,
// so brighter images move probability mass towards later classes.
func NewBrightnessBackend(outputs int) *MockBackend {
	return &MockBackend{
		Name_:   "mock-brightness",
		Spec:    DefaultSpec,
		Outputs: outputs,
		InferFunc: func(input []float32) ([]float32, error) {
			var sum float32
			for _, v := range input {
				sum += v
			}
			mean := sum / float32(len(input))
			scores := make([]float32, outputs)
			for i := range scores {
				scores[i] = mean * float32(i)
			}
			return scores, nil
		},
	}
}

// Compile-time check that MockBackend implements ModelBackend.
var _ models.ModelBackend = (*MockBackend)(nil)
