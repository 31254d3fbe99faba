// Package onnx runs ONNX image classifiers through onnxruntime_go.
package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/AhmAshraf1/PlanTech/pkg/models"
	ort "github.com/yalue/onnxruntime_go"
)

// Metadata describes the exported model. It is stored next to the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Layout      string   `json:"layout"`
	Classes     []string `json:"classes"`
}

// ReadMetadata loads and validates a metadata file.
func ReadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	if meta.Layout == "" {
		meta.Layout = string(models.LayoutNCHW)
	}
	if _, _, err := meta.imageSize(); err != nil {
		return nil, err
	}
	if len(meta.OutputShape) == 0 || meta.OutputShape[len(meta.OutputShape)-1] <= 0 {
		return nil, fmt.Errorf("invalid output_shape %v", meta.OutputShape)
	}
	return &meta, nil
}

// imageSize extracts width and height from a [1 3 H W] or [1 H W 3] input shape.
func (m *Metadata) imageSize() (w, h int, err error) {
	s := m.InputShape
	if len(s) != 4 || s[0] != 1 {
		return 0, 0, fmt.Errorf("unsupported input_shape %v", s)
	}
	switch models.TensorLayout(m.Layout) {
	case models.LayoutNCHW:
		if s[1] != 3 {
			return 0, 0, fmt.Errorf("input_shape %v is not [1 3 H W]", s)
		}
		return int(s[3]), int(s[2]), nil
	case models.LayoutNHWC:
		if s[3] != 3 {
			return 0, 0, fmt.Errorf("input_shape %v is not [1 H W 3]", s)
		}
		return int(s[2]), int(s[1]), nil
	}
	return 0, 0, fmt.Errorf("unsupported layout %q", m.Layout)
}

// Backend holds an ONNX Runtime session bound to pre-allocated tensors.
// It is not safe for concurrent Infer calls.
type Backend struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	meta         *Metadata
	spec         models.InputSpec
}

// NewBackend initializes the ONNX Runtime environment and creates a session for cfg.Path.
func NewBackend(cfg config.ModelConfig) (*Backend, error) {
	meta, err := ReadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	w, h, _ := meta.imageSize()

	if cfg.RuntimeLibrary != "" {
		ort.SetSharedLibraryPath(cfg.RuntimeLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.Path,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &Backend{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		meta:         meta,
		spec: models.InputSpec{
			Width:  w,
			Height: h,
			Layout: models.TensorLayout(meta.Layout),
			Scale:  cfg.ScaleFactor(),
		},
	}, nil
}

func (b *Backend) Name() string { return "onnx" }

func (b *Backend) InputSpec() models.InputSpec { return b.spec }

func (b *Backend) OutputSize() int {
	return int(b.meta.OutputShape[len(b.meta.OutputShape)-1])
}

// Classes returns the class names recorded in the metadata file, if any.
func (b *Backend) Classes() []string { return b.meta.Classes }

func (b *Backend) Infer(input []float32) ([]float32, error) {
	dst := b.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := b.outputTensor.GetData()
	n := b.OutputSize()
	if len(out) < n {
		return nil, errors.New("output tensor shorter than declared output_shape")
	}
	scores := make([]float32, n)
	copy(scores, out[:n])
	return scores, nil
}

func (b *Backend) Close() error {
	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Destroy())
	}
	if b.inputTensor != nil {
		errs = append(errs, b.inputTensor.Destroy())
	}
	if b.outputTensor != nil {
		errs = append(errs, b.outputTensor.Destroy())
	}
	errs = append(errs, ort.DestroyEnvironment())
	return errors.Join(errs...)
}

var _ models.ModelBackend = (*Backend)(nil)
