package classifier

import (
	"fmt"

	"github.com/AhmAshraf1/PlanTech/internal/classifier/onnx"
	"github.com/AhmAshraf1/PlanTech/internal/classifier/tflite"
	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// Load constructs the configured runtime and wraps it with the class list.
// Called once at server startup.
func Load(cfg config.ModelConfig) (*Classifier, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	c, err := New(backend, cfg.Classes)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return c, nil
}

func newBackend(cfg config.ModelConfig) (models.ModelBackend, error) {
	switch cfg.Backend {
	case "tflite":
		return tflite.NewBackend(cfg)
	case "onnx":
		return onnx.NewBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown model backend %q: must be one of tflite, onnx", cfg.Backend)
	}
}
