package onnx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AhmAshraf1/PlanTech/internal/classifier/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeta(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadMetadata_Defaults(t *testing.T) {
	path := writeMeta(t, `{"input_shape":[1,3,224,224],"output_shape":[1,5],"classes":["Healthy","Powdery","Rust","Slug","Spot"]}`)

	meta, err := onnx.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "input", meta.InputName)
	assert.Equal(t, "output", meta.OutputName)
	assert.Equal(t, "NCHW", meta.Layout)
	assert.Len(t, meta.Classes, 5)
}

func TestReadMetadata_NHWC(t *testing.T) {
	path := writeMeta(t, `{"input_shape":[1,256,256,3],"output_shape":[1,5],"layout":"NHWC","input_name":"x","output_name":"probs"}`)

	meta, err := onnx.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "x", meta.InputName)
	assert.Equal(t, "probs", meta.OutputName)
}

func TestReadMetadata_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad json":       `{`,
		"three dims":     `{"input_shape":[3,224,224],"output_shape":[1,5]}`,
		"wrong channels": `{"input_shape":[1,1,224,224],"output_shape":[1,5]}`,
		"bad layout":     `{"input_shape":[1,3,224,224],"output_shape":[1,5],"layout":"CHWN"}`,
		"no output":      `{"input_shape":[1,3,224,224]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := onnx.ReadMetadata(writeMeta(t, body))
			assert.Error(t, err)
		})
	}
}

func TestReadMetadata_MissingFile(t *testing.T) {
	_, err := onnx.ReadMetadata(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "read metadata")
}
