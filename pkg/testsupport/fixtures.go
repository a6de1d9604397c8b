// Package testsupport loads form fixtures and golden files for tests.
package testsupport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// MustLoadForm decodes a JSON or YAML form fixture.
func MustLoadForm(t *testing.T, path string) model.FormModel {
	t.Helper()

	form, err := LoadForm(path)
	if err != nil {
		t.Fatalf("load form: %v", err)
	}
	return form
}

// LoadForm decodes a form fixture for callers without a *testing.T.
func LoadForm(path string) (model.FormModel, error) {
	if path == "" {
		return model.FormModel{}, errors.New("testsupport: form path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("testsupport: read form: %w", err)
	}
	form, err := model.Decode(data)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("testsupport: decode form: %w", err)
	}
	return form, nil
}

// MustLoadValues reads a JSON object of submitted values.
func MustLoadValues(t *testing.T, path string) model.FormValues {
	t.Helper()

	var out model.FormValues
	if err := json.Unmarshal(MustReadGolden(t, path), &out); err != nil {
		t.Fatalf("unmarshal values: %v", err)
	}
	return out
}

// MustLoadDirectory reads static directory fixtures.
func MustLoadDirectory(t *testing.T, path string) *directory.Static {
	t.Helper()

	dir, err := directory.LoadStatic(MustReadGolden(t, path))
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}
	return dir
}

// WriteGolden writes value as indented JSON when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// MustLoadGolden unmarshals a JSON golden file into out.
func MustLoadGolden(t *testing.T, path string, out any) {
	t.Helper()

	if err := json.Unmarshal(MustReadGolden(t, path), out); err != nil {
		t.Fatalf("unmarshal golden %s: %v", path, err)
	}
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// MustReadGolden reads a fixture or golden file.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}
