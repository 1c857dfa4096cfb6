package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
)

// Artifact file names inside a bundle directory.
const (
	ModelFile    = "fare_prediction_model.gob"
	ScalerFile   = "scaler.gob"
	EncodersFile = "label_encoders.gob"
	MetadataFile = "model_metadata.json"

	// latestFile names the most recently saved version under Dir.
	latestFile = "LATEST"
)

// FileStore keeps one directory per bundle version under Dir. Each directory
// is written completely in a staging directory and renamed into place, so a
// reader never sees a partial bundle.
type FileStore struct {
	Dir string
}

// NewFileStore creates Dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create artifact dir %s", dir)
	}
	return &FileStore{Dir: dir}, nil
}

// Save writes b and returns the bundle directory.
func (s *FileStore) Save(ctx context.Context, b *fare.Bundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a, err := encodeBundle(b)
	if err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp(s.Dir, ".staging-")
	if err != nil {
		return "", errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	for name, data := range map[string][]byte{
		ModelFile:    a.Model,
		ScalerFile:   a.Scaler,
		EncodersFile: a.Encoders,
		MetadataFile: a.Metadata,
	} {
		if err := os.WriteFile(filepath.Join(staging, name), data, 0o644); err != nil {
			return "", errors.Wrapf(err, "write %s", name)
		}
	}

	final := filepath.Join(s.Dir, b.Version)
	if err := os.Rename(staging, final); err != nil {
		return "", errors.Wrapf(err, "publish bundle %s", b.Version)
	}
	if err := s.setLatest(b.Version); err != nil {
		return "", err
	}

	log.GetLoggerWithName("fare.store").Info("Bundle saved",
		log.OperationKey, log.OperationSave,
		log.ModelVersionKey, b.Version,
		"store.path", final,
	)
	return final, nil
}

func (s *FileStore) setLatest(version string) error {
	tmp, err := os.CreateTemp(s.Dir, ".latest-")
	if err != nil {
		return errors.Wrap(err, "write latest pointer")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(version + "\n"); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write latest pointer")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write latest pointer")
	}
	return errors.Wrap(os.Rename(tmp.Name(), filepath.Join(s.Dir, latestFile)), "publish latest pointer")
}

// Load reads a bundle directory. ref is either a directory path or a
// version saved under Dir. Any missing artifact fails the whole load.
func (s *FileStore) Load(ctx context.Context, ref string) (*fare.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := ref
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Join(s.Dir, ref)
	}

	var a artifacts
	for name, dst := range map[string]*[]byte{
		ModelFile:    &a.Model,
		ScalerFile:   &a.Scaler,
		EncodersFile: &a.Encoders,
		MetadataFile: &a.Metadata,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.NewArtifactMismatchError(name, "cannot read artifact", err)
		}
		*dst = data
	}

	b, err := decodeBundle(a)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("fare.store").Info("Bundle loaded",
		log.OperationKey, log.OperationLoad,
		log.ModelVersionKey, b.Version,
		"store.path", dir,
	)
	return b, nil
}

// LoadLatest loads the most recently saved bundle.
func (s *FileStore) LoadLatest(ctx context.Context) (*fare.Bundle, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, latestFile))
	if err != nil {
		return nil, errors.NewArtifactMismatchError(latestFile, "no saved bundle", err)
	}
	return s.Load(ctx, filepath.Join(s.Dir, strings.TrimSpace(string(data))))
}
