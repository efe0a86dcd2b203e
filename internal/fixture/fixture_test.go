package fixture

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blockworlds/geohist/internal/event"
	"github.com/blockworlds/geohist/internal/geom"
)

// #region fixture-tests

func TestGraben_BuildsReferenceHistory(t *testing.T) {
	f, err := Graben()
	if err != nil {
		t.Fatalf("Graben: %v", err)
	}
	h, err := f.Build(rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if h.Len() != 6 {
		t.Fatalf("expected 6 events, got %d", h.Len())
	}
	got := h.Serialize()
	if len(got) != len(f.Vector) {
		t.Fatalf("expected %d params, got %d", len(f.Vector), len(got))
	}
	for i := range got {
		if got[i] != f.Vector[i] {
			t.Errorf("param %d: expected %v, got %v", i, f.Vector[i], got[i])
		}
	}
	if lp := h.LogPrior(); math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Errorf("expected finite log prior, got %v", lp)
	}
	rho, err := h.RockProperties(geom.NewPoints([3]float64{0, 0, -20000}), 333)
	if err != nil {
		t.Fatalf("RockProperties: %v", err)
	}
	if math.Abs(rho[0]-3.0) > 1e-9 {
		t.Errorf("deep point: expected basement density 3.0, got %v", rho[0])
	}
}

func TestBuild_ValuesOverrideDraw(t *testing.T) {
	data := `{
		"events": [
			{"kind": "Basement",
			 "priors": [{"params": ["density"], "dist": "gaussian", "mean": 3.0, "std": 0.5}],
			 "values": {"density": 2.7}}
		]
	}`
	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	h, err := f.Build(rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := h.Serialize()[0]; got != 2.7 {
		t.Errorf("expected density=2.7, got %v", got)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{
			name: "layer first",
			data: `{"events": [{"kind": "StratLayer", "priors": [
				{"params": ["thickness"], "dist": "gaussian", "mean": 1, "std": 1},
				{"params": ["density"], "dist": "gaussian", "mean": 1, "std": 1}]}]}`,
		},
		{
			name: "bad hyperparameter",
			data: `{"events": [{"kind": "Basement", "priors": [
				{"params": ["density"], "dist": "gaussian", "mean": 3, "std": -1}]}]}`,
		},
		{
			name: "unknown parameter",
			data: `{"events": [{"kind": "Basement", "priors": [
				{"params": ["porosity"], "dist": "gaussian", "mean": 3, "std": 1}]}]}`,
			want: event.ErrConfig,
		},
		{
			name: "vector length",
			data: `{"events": [{"kind": "Basement", "priors": [
				{"params": ["density"], "dist": "gaussian", "mean": 3, "std": 1}]}],
				"vector": [1, 2]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = f.Build(rand.New(rand.NewPCG(1, 2)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no events", `{"events": []}`},
		{"unknown kind", `{"events": [{"kind": "Intrusion", "priors": [{"params": ["a"], "dist": "gaussian"}]}]}`},
		{"unknown dist", `{"events": [{"kind": "Basement", "priors": [{"params": ["density"], "dist": "cauchy"}]}]}`},
		{"no priors", `{"events": [{"kind": "Basement"}]}`},
		{"bad kernel", `{"kernel": "cubic", "events": [{"kind": "Basement", "priors": [{"params": ["density"], "dist": "gaussian"}]}]}`},
		{"malformed", `{"events": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graben.json")
	if err := os.WriteFile(path, grabenJSON, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Events) != 6 {
		t.Errorf("expected 6 events, got %d", len(f.Events))
	}

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Errorf("expected error naming the file, got %v", err)
	}
}

func TestLoad_DefaultsToGraben(t *testing.T) {
	f, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Events) != 6 || len(f.Vector) != 21 {
		t.Errorf("expected built-in graben, got %d events and %d values", len(f.Events), len(f.Vector))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

// #endregion fixture-tests
