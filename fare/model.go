package fare

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
)

// Model serves predictions from the current Bundle and replaces it
// atomically on Train or Load. Readers never block: every call loads the
// bundle pointer once and uses only that snapshot. Train and Load are
// serialized.
type Model struct {
	current atomic.Pointer[Bundle]
	mu      sync.Mutex

	defaults TrainConfig
	clock    func() time.Time
	logger   log.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithModelClock sets the clock used for best-time searches and default
// query resolution.
func WithModelClock(clock func() time.Time) ModelOption {
	return func(m *Model) { m.clock = clock }
}

// WithDefaultTrainConfig sets the config Train starts from before options.
func WithDefaultTrainConfig(cfg TrainConfig) ModelOption {
	return func(m *Model) { m.defaults = cfg }
}

// NewModel creates an untrained model.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		defaults: DefaultTrainConfig(),
		clock:    time.Now,
		logger:   log.GetLoggerWithName("fare.model"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the model clock's current time.
func (m *Model) Now() time.Time {
	return m.clock()
}

// Train fits a new bundle and swaps it in. On failure the previous bundle
// stays in place.
func (m *Model) Train(records []TripRecord, opts ...TrainOption) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bundle, err := m.FitBundle(records, opts...)
	if err != nil {
		return Metadata{}, err
	}
	m.swap(bundle, log.OperationFit)
	return bundle.Metadata, nil
}

// FitBundle fits a bundle with the model's default config and opts without
// swapping it in. Callers that must persist before serving pass the result
// to Load.
func (m *Model) FitBundle(records []TripRecord, opts ...TrainOption) (*Bundle, error) {
	cfg := m.defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	bundle, err := Fit(records, cfg)
	if err != nil {
		m.logger.Error("Training failed", err,
			log.OperationKey, log.OperationFit,
			log.SamplesKey, len(records),
		)
		return nil, err
	}
	return bundle, nil
}

// Load validates b and swaps it in. An invalid bundle leaves the previous
// one in place.
func (m *Model) Load(b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swap(b, log.OperationLoad)
	return nil
}

func (m *Model) swap(b *Bundle, op string) {
	prev := m.current.Swap(b)
	fields := []any{log.OperationKey, op, log.ModelVersionKey, b.Version}
	if prev != nil {
		fields = append(fields, "model.previous_version", prev.Version)
	}
	m.logger.Info("Bundle swapped", fields...)
}

// Bundle returns the current bundle.
func (m *Model) Bundle() (*Bundle, error) {
	b := m.current.Load()
	if b == nil {
		return nil, errors.NewModelNotTrainedError("bundle")
	}
	return b, nil
}

// IsTrained reports whether a bundle is loaded.
func (m *Model) IsTrained() bool {
	return m.current.Load() != nil
}

// Metadata returns the metadata of the current bundle.
func (m *Model) Metadata() (Metadata, error) {
	b := m.current.Load()
	if b == nil {
		return Metadata{}, errors.NewModelNotTrainedError("metadata")
	}
	return b.Metadata, nil
}

// PredictFare estimates the fare of rec with the current bundle.
func (m *Model) PredictFare(rec TripRecord) (float64, error) {
	b := m.current.Load()
	if b == nil {
		return 0, errors.NewModelNotTrainedError("predict")
	}
	return b.PredictFare(rec)
}

// PredictQuery resolves q against the model clock and predicts it.
func (m *Model) PredictQuery(q Query) (float64, TripRecord, error) {
	rec := q.Resolve(m.clock())
	fare, err := m.PredictFare(rec)
	return fare, rec, err
}

// PredictBatch predicts every transport × provider combination for one
// trip, skipping unseen categories.
func (m *Model) PredictBatch(base TripRecord, transports, providers []string) ([]BatchPrediction, error) {
	b := m.current.Load()
	if b == nil {
		return nil, errors.NewModelNotTrainedError("batch_predict")
	}
	preds, err := b.PredictBatch(base, transports, providers)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Batch predicted",
		log.OperationKey, log.OperationPredict,
		log.PredsKey, len(preds),
		log.SkippedKey, len(transports)*len(providers)-len(preds),
	)
	return preds, nil
}

// PredictBestTime runs the best-time search on the current bundle. A zero
// q.Now is filled from the model clock.
func (m *Model) PredictBestTime(q BestTimeQuery) (*Recommendation, error) {
	b := m.current.Load()
	if b == nil {
		return nil, errors.NewModelNotTrainedError("best_time")
	}
	if q.Now.IsZero() {
		q.Now = m.clock()
	}
	return b.PredictBestTime(q)
}
