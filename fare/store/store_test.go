package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/dataset"
	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/preprocessing"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
)

var trainedAt = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

func trainBundle(t *testing.T, at time.Time) *fare.Bundle {
	t.Helper()
	records := dataset.Synthetic(dataset.SyntheticConfig{Samples: 80, Seed: 42, Now: at})
	cfg := fare.DefaultTrainConfig()
	cfg.Forest.NEstimators = 10
	cfg.Clock = func() time.Time { return at }
	b, err := fare.Fit(records, cfg)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return b
}

var probes = []fare.TripRecord{
	{DistanceKm: 5, DurationMins: 15, Hour: 8, DayOfWeek: 0, TransportType: "cab", ServiceProvider: "yela"},
	{DistanceKm: 12, DurationMins: 30, Hour: 14, DayOfWeek: 6, TransportType: "bike", ServiceProvider: "obeer"},
	{DistanceKm: 25, DurationMins: 70, Hour: 18, DayOfWeek: 3, TransportType: "auto", ServiceProvider: "radipoo"},
}

func assertSamePredictions(t *testing.T, want, got *fare.Bundle) {
	t.Helper()
	for _, p := range probes {
		a, err := want.PredictFare(p)
		if err != nil {
			t.Fatalf("PredictFare(original): %v", err)
		}
		b, err := got.PredictFare(p)
		if err != nil {
			t.Fatalf("PredictFare(loaded): %v", err)
		}
		if a != b {
			t.Errorf("%v: loaded bundle predicts %v, original %v", p, b, a)
		}
	}
}

func isMismatch(err error) bool {
	var m *errors.ArtifactMismatchError
	return errors.As(err, &m)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	b := trainBundle(t, trainedAt)

	dir, err := s.Save(ctx, b)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{ModelFile, ScalerFile, EncodersFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}

	loaded, err := s.Load(ctx, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Version != b.Version {
		t.Errorf("Version = %q, want %q", loaded.Version, b.Version)
	}
	if !loaded.Metadata.TrainedAt.Equal(trainedAt) {
		t.Errorf("TrainedAt = %v, want %v", loaded.Metadata.TrainedAt, trainedAt)
	}
	assertSamePredictions(t, b, loaded)

	byVersion, err := s.Load(ctx, b.Version)
	if err != nil {
		t.Fatalf("Load by version: %v", err)
	}
	assertSamePredictions(t, b, byVersion)
}

func TestFileStoreLoadLatest(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.LoadLatest(ctx); !isMismatch(err) {
		t.Errorf("empty store: want ArtifactMismatchError, got %v", err)
	}

	first := trainBundle(t, trainedAt)
	second := trainBundle(t, trainedAt.Add(time.Hour))
	for _, b := range []*fare.Bundle{first, second} {
		if _, err := s.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	latest, err := s.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latest.Version != second.Version {
		t.Errorf("LoadLatest = %s, want %s", latest.Version, second.Version)
	}
}

// rewriteGob decodes the artifact at path into v, applies mutate and writes
// it back.
func rewriteGob[T any](t *testing.T, path string, v *T, mutate func(*T)) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := model.UnmarshalModel(data, v); err != nil {
		t.Fatal(err)
	}
	mutate(v)
	if data, err = model.MarshalModel(v); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// rewriteMetadata applies mutate to the decoded metadata document.
func rewriteMetadata(t *testing.T, dir string, mutate func(*metadataDoc)) {
	t.Helper()
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	mutate(&doc)
	data, _ = json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileStoreRejectsPartialOrTamperedBundle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		tamper func(t *testing.T, dir string)
	}{
		{"missing scaler", func(t *testing.T, dir string) {
			if err := os.Remove(filepath.Join(dir, ScalerFile)); err != nil {
				t.Fatal(err)
			}
		}},
		{"empty encoders", func(t *testing.T, dir string) {
			if err := os.WriteFile(filepath.Join(dir, EncodersFile), nil, 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"corrupt model", func(t *testing.T, dir string) {
			if err := os.WriteFile(filepath.Join(dir, ModelFile), []byte("not gob"), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"reordered feature columns", func(t *testing.T, dir string) {
			rewriteMetadata(t, dir, func(doc *metadataDoc) {
				doc.FeatureColumns[0], doc.FeatureColumns[1] = doc.FeatureColumns[1], doc.FeatureColumns[0]
			})
		}},
		{"version mismatch", func(t *testing.T, dir string) {
			rewriteMetadata(t, dir, func(doc *metadataDoc) { doc.Metadata.Version = "other" })
		}},
		{"blank metadata version", func(t *testing.T, dir string) {
			rewriteMetadata(t, dir, func(doc *metadataDoc) { doc.Metadata.Version = "" })
		}},
		{"truncated scaler statistics", func(t *testing.T, dir string) {
			rewriteGob(t, filepath.Join(dir, ScalerFile), &preprocessing.StandardScaler{}, func(s *preprocessing.StandardScaler) {
				s.Mean = s.Mean[:len(s.Mean)-1]
				s.Scale = s.Scale[:len(s.Scale)-1]
			})
		}},
		{"tree without nodes", func(t *testing.T, dir string) {
			rewriteGob(t, filepath.Join(dir, ModelFile), &ensemble.RandomForestRegressor{}, func(f *ensemble.RandomForestRegressor) {
				f.Trees[0].Nodes = nil
			})
		}},
		{"child index out of range", func(t *testing.T, dir string) {
			rewriteGob(t, filepath.Join(dir, ModelFile), &ensemble.RandomForestRegressor{}, func(f *ensemble.RandomForestRegressor) {
				for _, tr := range f.Trees {
					for i := range tr.Nodes {
						if !tr.Nodes[i].IsLeaf() {
							tr.Nodes[i].Right = len(tr.Nodes)
							return
						}
					}
				}
				t.Fatal("no split node to tamper with")
			})
		}},
		{"split on unknown feature", func(t *testing.T, dir string) {
			rewriteGob(t, filepath.Join(dir, ModelFile), &ensemble.RandomForestRegressor{}, func(f *ensemble.RandomForestRegressor) {
				for _, tr := range f.Trees {
					for i := range tr.Nodes {
						if !tr.Nodes[i].IsLeaf() {
							tr.Nodes[i].Feature = fare.NumFeatures
							return
						}
					}
				}
				t.Fatal("no split node to tamper with")
			})
		}},
	}

	b := trainBundle(t, trainedAt)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			dir, err := s.Save(ctx, b)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			tt.tamper(t, dir)
			if _, err := s.Load(ctx, dir); !isMismatch(err) {
				t.Errorf("want ArtifactMismatchError, got %v", err)
			}
		})
	}
}

func TestFileStoreSaveRejectsInvalidBundle(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	b := *trainBundle(t, trainedAt)
	b.Scaler = nil
	if _, err := s.Save(context.Background(), &b); !isMismatch(err) {
		t.Errorf("want ArtifactMismatchError, got %v", err)
	}
	entries, _ := os.ReadDir(s.Dir)
	if len(entries) != 0 {
		t.Errorf("failed save left %d entries behind", len(entries))
	}
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bundles.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	first := trainBundle(t, trainedAt)
	second := trainBundle(t, trainedAt.Add(time.Hour))
	for _, b := range []*fare.Bundle{first, second} {
		if _, err := s.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	loaded, err := s.Load(ctx, first.Version)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSamePredictions(t, first, loaded)

	latest, err := s.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latest.Version != second.Version {
		t.Errorf("LoadLatest = %s, want %s", latest.Version, second.Version)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Version != second.Version || infos[1].Version != first.Version {
		t.Errorf("List = %+v, want newest first", infos)
	}

	if _, err := s.Save(ctx, first); err == nil {
		t.Error("saving the same version twice should fail")
	}
}

func TestSQLiteStoreRejectsMissingAndPartial(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	if _, err := s.Load(ctx, "no-such-version"); !isMismatch(err) {
		t.Errorf("missing version: want ArtifactMismatchError, got %v", err)
	}
	if _, err := s.LoadLatest(ctx); !isMismatch(err) {
		t.Errorf("empty catalogue: want ArtifactMismatchError, got %v", err)
	}

	b := trainBundle(t, trainedAt)
	if _, err := s.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE bundles SET scaler = NULL WHERE version = ?`, b.Version); err != nil {
		t.Fatalf("nulling scaler: %v", err)
	}
	if _, err := s.Load(ctx, b.Version); !isMismatch(err) {
		t.Errorf("NULL scaler: want ArtifactMismatchError, got %v", err)
	}
}
