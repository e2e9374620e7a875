package asr

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestModelCandidatesPreference(t *testing.T) {
	got := modelCandidates("encoder", PrecisionFloat16)
	if got[0] != "encoder.onnx" {
		t.Errorf("float16 prefers %q, want encoder.onnx", got[0])
	}

	for _, precision := range []string{PrecisionInt8Float16, PrecisionInt8} {
		got := modelCandidates("encoder", precision)
		if got[0] != "encoder.int8.onnx" {
			t.Errorf("%s prefers %q, want encoder.int8.onnx", precision, got[0])
		}
	}
}

func TestFindModelFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "encoder.int8.onnx"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got := findModelFile(dir, []string{"encoder.onnx", "encoder.int8.onnx"})
	if got != filepath.Join(dir, "encoder.int8.onnx") {
		t.Errorf("findModelFile = %q", got)
	}

	if got := findModelFile(dir, []string{"decoder.onnx"}); got != "" {
		t.Errorf("expected empty result for missing file, got %q", got)
	}
}

func TestLoadMissingModelIsFatal(t *testing.T) {
	loader := NewWhisperLoader(t.TempDir(), 2)

	cfg := ResourceConfig{Model: "large-v3", Device: DeviceCPU, Precision: PrecisionInt8}
	_, err := loader.Load(cfg)
	if err == nil {
		t.Fatal("expected error for missing model directory")
	}
	if IsResourceError(err) {
		t.Error("missing model files must be fatal, not a resource error")
	}
	if !errors.Is(err, ErrBadModel) {
		t.Errorf("err = %v, want ErrBadModel", err)
	}
}
