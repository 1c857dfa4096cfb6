package preprocessing

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler(t *testing.T) {
	tests := []struct {
		name      string
		X         *mat.Dense
		wantMean  []float64
		wantScale []float64
	}{
		{
			name:      "two features",
			X:         mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40}),
			wantMean:  []float64{2.5, 25},
			wantScale: []float64{math.Sqrt(1.25), math.Sqrt(125)},
		},
		{
			name:      "zero variance column gets unit scale",
			X:         mat.NewDense(3, 2, []float64{5, 1, 5, 2, 5, 3}),
			wantMean:  []float64{5, 2},
			wantScale: []float64{1, math.Sqrt(2.0 / 3.0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScaler()
			if err := s.Fit(tt.X); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if !floats.EqualApprox(s.Mean, tt.wantMean, 1e-12) {
				t.Errorf("Mean = %v, want %v", s.Mean, tt.wantMean)
			}
			if !floats.EqualApprox(s.Scale, tt.wantScale, 1e-12) {
				t.Errorf("Scale = %v, want %v", s.Scale, tt.wantScale)
			}

			Xt, err := s.Transform(tt.X)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			back, err := s.InverseTransform(Xt)
			if err != nil {
				t.Fatalf("InverseTransform: %v", err)
			}
			if !mat.EqualApprox(back, tt.X, 1e-9) {
				t.Errorf("inverse mismatch: %v", mat.Formatted(back))
			}
		})
	}
}

func TestStandardScalerTransformRowMatchesMatrix(t *testing.T) {
	X := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 10})
	s := NewStandardScaler()
	Xt, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	row, err := s.TransformRow([]float64{4, 5, 6})
	if err != nil {
		t.Fatalf("TransformRow: %v", err)
	}
	if !floats.EqualApprox(row, mat.Row(nil, 1, Xt), 1e-12) {
		t.Errorf("row = %v, want %v", row, mat.Row(nil, 1, Xt))
	}
}

func TestStandardScalerTransformIsReadOnly(t *testing.T) {
	s := NewStandardScaler()
	if err := s.Fit(mat.NewDense(2, 1, []float64{0, 2})); err != nil {
		t.Fatal(err)
	}
	mean := append([]float64(nil), s.Mean...)
	if _, err := s.Transform(mat.NewDense(2, 1, []float64{100, 200})); err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(mean, s.Mean) {
		t.Error("Transform must not refit")
	}
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScaler()

	var nfe *errors.NotFittedError
	if _, err := s.Transform(mat.NewDense(1, 1, []float64{1})); !errors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	}
	var de *errors.DimensionError
	if _, err := s.TransformRow([]float64{1, 2, 3}); !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}

	var nie *errors.NumericalInstabilityError
	if err := NewStandardScaler().Fit(mat.NewDense(2, 1, []float64{1, math.NaN()})); !errors.As(err, &nie) {
		t.Errorf("expected NumericalInstabilityError, got %v", err)
	}
}

func TestStandardScalerGob(t *testing.T) {
	s := NewStandardScaler()
	if err := s.Fit(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 7})); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got StandardScaler
	if err := gob.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsFitted() || got.NFeatures != 2 {
		t.Fatalf("decoded scaler not fitted: %v", got.String())
	}
	want, _ := s.TransformRow([]float64{2, 3})
	row, err := got.TransformRow([]float64{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(row, want) {
		t.Errorf("decoded transform = %v, want %v", row, want)
	}
}

func TestStandardScalerValidate(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 10, 2, 20, 3, 30})

	tests := []struct {
		name   string
		tamper func(s *StandardScaler)
		valid  bool
	}{
		{"fitted", func(s *StandardScaler) {}, true},
		{"short mean", func(s *StandardScaler) { s.Mean = s.Mean[:1] }, false},
		{"short scale", func(s *StandardScaler) { s.Scale = s.Scale[:1] }, false},
		{"zero scale", func(s *StandardScaler) { s.Scale[0] = 0 }, false},
		{"nan mean", func(s *StandardScaler) { s.Mean[1] = math.NaN() }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScaler()
			if err := s.Fit(X); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			tt.tamper(s)
			err := s.Validate()
			if tt.valid != (err == nil) {
				t.Errorf("Validate() = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}
