package retrain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/dataset"
	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/fare/store"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
)

var fixedNow = time.Date(2024, time.March, 4, 6, 0, 0, 0, time.UTC)

func syntheticSource(calls *atomic.Int32) Source {
	return func(ctx context.Context) ([]fare.TripRecord, error) {
		calls.Add(1)
		return dataset.Synthetic(dataset.SyntheticConfig{Samples: 60, Seed: 42, Now: fixedNow}), nil
	}
}

func smallForest() fare.TrainOption {
	p := ensemble.DefaultParams()
	p.NEstimators = 8
	return fare.WithForestParams(p)
}

func TestRunOnceTrainsAndSaves(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := fare.NewModel()
	var calls atomic.Int32
	r := New(m, fs, syntheticSource(&calls), smallForest())

	meta, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !m.IsTrained() {
		t.Fatal("model not trained")
	}
	saved, err := fs.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if saved.Version != meta.Version {
		t.Errorf("saved %s, trained %s", saved.Version, meta.Version)
	}
	st := r.Status()
	if st.Runs != 1 || st.LastVersion != meta.Version || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunOnceFailureKeepsModel(t *testing.T) {
	ctx := context.Background()
	m := fare.NewModel()
	var calls atomic.Int32
	if _, err := New(m, nil, syntheticSource(&calls), smallForest()).RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	before, _ := m.Bundle()

	failing := New(m, nil, func(context.Context) ([]fare.TripRecord, error) {
		return nil, errors.New("source offline")
	})
	if _, err := failing.RunOnce(ctx); err == nil {
		t.Fatal("expected error")
	}
	after, _ := m.Bundle()
	if after != before {
		t.Error("failed run replaced the live bundle")
	}
	if st := failing.Status(); st.Runs != 1 || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}

	empty := New(m, nil, func(context.Context) ([]fare.TripRecord, error) { return nil, nil })
	_, err := empty.RunOnce(ctx)
	var ide *errors.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Errorf("empty data: want InsufficientDataError, got %v", err)
	}
}

// failingStore rejects every save.
type failingStore struct {
	store.BundleStore
	saves atomic.Int32
}

func (f *failingStore) Save(context.Context, *fare.Bundle) (string, error) {
	f.saves.Add(1)
	return "", errors.New("disk full")
}

func TestRunOnceSaveFailureKeepsLiveBundle(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32

	t.Run("untrained model stays untrained", func(t *testing.T) {
		m := fare.NewModel()
		fs := &failingStore{}
		if _, err := New(m, fs, syntheticSource(&calls), smallForest()).RunOnce(ctx); err == nil {
			t.Fatal("expected the save error")
		}
		if fs.saves.Load() != 1 {
			t.Errorf("saves = %d, want 1", fs.saves.Load())
		}
		if m.IsTrained() {
			t.Error("unsaved bundle was swapped in")
		}
	})

	t.Run("previous bundle is kept", func(t *testing.T) {
		m := fare.NewModel()
		if _, err := New(m, nil, syntheticSource(&calls), smallForest()).RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		before, _ := m.Bundle()

		r := New(m, &failingStore{}, syntheticSource(&calls), smallForest())
		if _, err := r.RunOnce(ctx); err == nil {
			t.Fatal("expected the save error")
		}
		after, _ := m.Bundle()
		if after != before {
			t.Error("unsaved bundle replaced the live one")
		}
		if st := r.Status(); st.LastError == "" || st.LastVersion != "" {
			t.Errorf("status = %+v", st)
		}
	})
}

func TestStartSchedulesRuns(t *testing.T) {
	m := fare.NewModel()
	var calls atomic.Int32
	r := New(m, nil, syntheticSource(&calls), smallForest())

	if err := r.Start(context.Background(), "not a schedule"); err == nil {
		t.Fatal("invalid spec should fail")
	}
	if err := r.Start(context.Background(), "@every 1s"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()
	if err := r.Start(context.Background(), "@every 1s"); err == nil {
		t.Error("second Start should fail")
	}
	if r.Status().NextRun.IsZero() {
		t.Error("NextRun not reported")
	}

	deadline := time.Now().Add(10 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	r.Stop()
	if calls.Load() == 0 {
		t.Fatal("scheduled run never happened")
	}
	if !m.IsTrained() {
		t.Error("scheduled run did not train the model")
	}
}
