// Package tflite runs TensorFlow Lite image classifiers through go-tflite.
package tflite

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/AhmAshraf1/PlanTech/pkg/models"
	"github.com/tphakala/go-tflite"
)

// Backend wraps one TFLite interpreter with tensors allocated at load time.
// It is not safe for concurrent Infer calls.
type Backend struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	spec        models.InputSpec
	outputSize  int
	quantized   bool
}

// NewBackend loads the model file at cfg.Path and validates that its first
// input is a single NHWC RGB image and its first output a score vector.
func NewBackend(cfg config.ModelConfig) (*Backend, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read tflite model: %w", err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", cfg.Path)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(max(1, cfg.Threads))
	options.SetErrorReporter(func(msg string, _ any) {
		slog.Error("tflite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create tflite interpreter")
	}

	b := &Backend{model: model, options: options, interpreter: interpreter}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		b.Close()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	if err := b.inspect(cfg.ScaleFactor()); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

func (b *Backend) inspect(scale float32) error {
	input := b.interpreter.GetInputTensor(0)
	if input == nil {
		return errors.New("model has no input tensor")
	}
	if input.NumDims() != 4 || input.Dim(0) != 1 || input.Dim(3) != 3 {
		return fmt.Errorf("unsupported input shape %v, want [1 H W 3]", dims(input))
	}
	switch input.Type() {
	case tflite.Float32:
	case tflite.UInt8:
		// Quantized models take raw 8-bit pixels.
		scale = 1
	default:
		return fmt.Errorf("unsupported input tensor type %v", input.Type())
	}

	output := b.interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.New("model has no output tensor")
	}
	switch output.Type() {
	case tflite.Float32:
	case tflite.UInt8:
		b.quantized = true
	default:
		return fmt.Errorf("unsupported output tensor type %v", output.Type())
	}

	b.spec = models.InputSpec{
		Width:  input.Dim(2),
		Height: input.Dim(1),
		Layout: models.LayoutNHWC,
		Scale:  scale,
	}
	b.outputSize = output.Dim(output.NumDims() - 1)
	return nil
}

func (b *Backend) Name() string { return "tflite" }

func (b *Backend) InputSpec() models.InputSpec { return b.spec }

func (b *Backend) OutputSize() int { return b.outputSize }

// OutputsProbabilities reports true for quantized outputs, which always
// encode a softmax distribution.
func (b *Backend) OutputsProbabilities() bool { return b.quantized }

// Infer copies input into the interpreter's input tensor, invokes the model
// and returns a copy of the (dequantized) output scores.
func (b *Backend) Infer(input []float32) ([]float32, error) {
	if len(input) != b.spec.Len() {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), b.spec.Len())
	}

	in := b.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, errors.New("cannot get input tensor")
	}
	switch in.Type() {
	case tflite.UInt8:
		dst := in.UInt8s()
		for i, v := range input {
			dst[i] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
		}
	default:
		copy(in.Float32s(), input)
	}

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := b.interpreter.GetOutputTensor(0)
	if out == nil {
		return nil, errors.New("cannot get output tensor")
	}

	scores := make([]float32, b.outputSize)
	switch out.Type() {
	case tflite.UInt8:
		q := out.QuantizationParams()
		raw := out.UInt8s()
		for i := range scores {
			scores[i] = float32(q.Scale * float64(int(raw[i])-q.ZeroPoint))
		}
	default:
		copy(scores, out.Float32s())
	}
	return scores, nil
}

func (b *Backend) Close() error {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.options != nil {
		b.options.Delete()
		b.options = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}

func dims(t *tflite.Tensor) []int {
	out := make([]int, t.NumDims())
	for i := range out {
		out[i] = t.Dim(i)
	}
	return out
}

var (
	_ models.ModelBackend      = (*Backend)(nil)
	_ models.ProbabilityOutput = (*Backend)(nil)
)
