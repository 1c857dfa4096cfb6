// Package retrain refits the live fare model on a cron schedule and
// persists each new bundle.
package retrain

import (
	"context"
	"sync"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/fare/store"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/robfig/cron/v3"
)

// Source supplies training records for one run.
type Source func(ctx context.Context) ([]fare.TripRecord, error)

// Status describes the most recent run.
type Status struct {
	Runs        int       `json:"runs"`
	LastRun     time.Time `json:"last_run"`
	LastVersion string    `json:"last_version,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	NextRun     time.Time `json:"next_run,omitempty"`
}

// Retrainer trains a fare.Model from a Source and saves the result. Each
// run fits, saves, then swaps the same bundle in, so a failed run leaves
// the live bundle and the store untouched.
type Retrainer struct {
	model     *fare.Model
	store     store.BundleStore
	source    Source
	trainOpts []fare.TrainOption
	logger    log.Logger

	mu     sync.Mutex
	status Status
	cron   *cron.Cron
	entry  cron.EntryID
}

// New creates a Retrainer. st may be nil to skip persistence.
func New(m *fare.Model, st store.BundleStore, source Source, opts ...fare.TrainOption) *Retrainer {
	return &Retrainer{
		model:     m,
		store:     st,
		source:    source,
		trainOpts: opts,
		logger:    log.GetLoggerWithName("retrain"),
	}
}

// RunOnce trains, saves and swaps in one bundle.
func (r *Retrainer) RunOnce(ctx context.Context) (fare.Metadata, error) {
	start := time.Now()
	meta, err := r.run(ctx)

	r.mu.Lock()
	r.status.Runs++
	r.status.LastRun = start
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
		r.status.LastVersion = meta.Version
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Retrain failed", err, log.DurationMsKey, time.Since(start).Milliseconds())
		return fare.Metadata{}, err
	}
	r.logger.Info("Retrain completed",
		log.ModelVersionKey, meta.Version,
		log.R2ScoreKey, meta.R2,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return meta, nil
}

func (r *Retrainer) run(ctx context.Context) (fare.Metadata, error) {
	records, err := r.source(ctx)
	if err != nil {
		return fare.Metadata{}, errors.Wrap(err, "load training data")
	}
	if err := ctx.Err(); err != nil {
		return fare.Metadata{}, err
	}
	b, err := r.model.FitBundle(records, r.trainOpts...)
	if err != nil {
		return fare.Metadata{}, err
	}
	if r.store != nil {
		if _, err := r.store.Save(ctx, b); err != nil {
			return fare.Metadata{}, errors.Wrapf(err, "save bundle %s", b.Version)
		}
	}
	// 保存に成功した bundle だけを公開する
	if err := r.model.Load(b); err != nil {
		return fare.Metadata{}, err
	}
	return b.Metadata, nil
}

// Start schedules RunOnce with a standard five-field cron spec or a
// descriptor such as "@every 1h". Overlapping runs are skipped. ctx is
// passed to every run.
func (r *Retrainer) Start(ctx context.Context, spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return errors.NewValidationError("schedule", "invalid cron expression: "+err.Error(), spec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.NewValueError("retrain.Start", "scheduler already running")
	}

	cl := cronLogger{r.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	r.entry = c.Schedule(schedule, cron.FuncJob(func() {
		_, _ = r.RunOnce(ctx)
	}))
	c.Start()
	r.cron = c

	r.logger.Info("Retrain scheduler started", "schedule", spec, "next_run", schedule.Next(time.Now()))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Retrainer) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("Retrain scheduler stopped")
}

// Status returns a snapshot of the last run and the next scheduled run.
func (r *Retrainer) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	if r.cron != nil {
		st.NextRun = r.cron.Entry(r.entry).Next
	}
	return st
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct {
	l log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append([]any{err}, keysAndValues...)...)
}
