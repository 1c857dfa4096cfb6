package model

import (
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/farecast/pkg/errors"
)

type persisted struct {
	Weights []float64
	State   *StateManager
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	if s.IsFitted() {
		t.Fatal("new state should not be fitted")
	}

	err := s.RequireFitted("StandardScaler", "Transform")
	var nfe *errors.NotFittedError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if nfe.ModelName != "StandardScaler" || nfe.Method != "Transform" {
		t.Errorf("unexpected error fields: %+v", nfe)
	}

	s.SetDimensions(9, 80)
	s.SetFitted()
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.RequireFeatures("transform", 9); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var de *errors.DimensionError
	if err := s.RequireFeatures("transform", 8); !errors.As(err, &de) || de.Expected != 9 || de.Got != 8 {
		t.Errorf("expected DimensionError 9 vs 8, got %v", err)
	}

	s.Reset()
	if nf, ns := s.GetDimensions(); s.IsFitted() || nf != 0 || ns != 0 {
		t.Error("Reset should clear state")
	}

	var nilState *StateManager
	if nilState.IsFitted() {
		t.Error("nil state should not be fitted")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	state := NewStateManager()
	state.SetDimensions(2, 10)
	state.SetFitted()
	in := persisted{Weights: []float64{1.5, -2}, State: state}

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "m.gob")
		if err := SaveModel(&in, path); err != nil {
			t.Fatalf("SaveModel: %v", err)
		}
		var out persisted
		if err := LoadModel(&out, path); err != nil {
			t.Fatalf("LoadModel: %v", err)
		}
		if !out.State.IsFitted() || out.Weights[1] != -2 {
			t.Errorf("round trip mismatch: %+v", out)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		data, err := MarshalModel(&in)
		if err != nil {
			t.Fatalf("MarshalModel: %v", err)
		}
		var out persisted
		if err := UnmarshalModel(data, &out); err != nil {
			t.Fatalf("UnmarshalModel: %v", err)
		}
		if nf, ns := out.State.GetDimensions(); nf != 2 || ns != 10 {
			t.Errorf("dimensions = %d,%d", nf, ns)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var out persisted
		if err := LoadModel(&out, filepath.Join(t.TempDir(), "absent.gob")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
