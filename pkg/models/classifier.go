// Package models contains shared data models used across the PlanTech codebase.
package models

// TensorLayout names the memory order of an image input tensor.
type TensorLayout string

const (
	LayoutNHWC TensorLayout = "NHWC"
	LayoutNCHW TensorLayout = "NCHW"
)

// InputSpec describes the fixed input tensor a model expects for one RGB image.
// Scale multiplies 8-bit channel values before they are written to the tensor
// (1 keeps 0..255, 1/255 maps to 0..1).
type InputSpec struct {
	Width  int
	Height int
	Layout TensorLayout
	Scale  float32
}

// Len returns the number of float32 values in one input tensor.
func (s InputSpec) Len() int {
	return s.Width * s.Height * 3
}

// ModelBackend is the interface every inference runtime must implement.
// Never call a specific runtime directly; inject this interface.
// Implementations are not required to be safe for concurrent Infer calls.
type ModelBackend interface {
	// Name returns the runtime identifier (e.g., "tflite", "onnx").
	Name() string
	// InputSpec returns the shape contract for Infer's input.
	InputSpec() InputSpec
	// OutputSize returns the number of scores produced per inference, or 0 if unknown.
	OutputSize() int
	// Infer runs one forward pass and returns a copy of the output scores.
	Infer(input []float32) ([]float32, error)
	// Close releases runtime resources.
	Close() error
}

// ProbabilityOutput is implemented by backends that know whether their scores
// already form a probability distribution.
type ProbabilityOutput interface {
	OutputsProbabilities() bool
}

// Prediction is the labeled top-1 outcome of one classification.
type Prediction struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}
