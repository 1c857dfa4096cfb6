package dataset

import (
	"context"
	"math"
	"os"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/log"
)

// Sources reported by TrainingData.Load.
const (
	SourceCSV       = "csv"
	SourceSynthetic = "synthetic"
)

// TrainingData selects real trips from a CSV file and falls back to the
// synthetic generator when too few labelled trips exist.
type TrainingData struct {
	// Path of the trip CSV; empty means synthetic only.
	Path string
	// MinRecords is the number of labelled trips needed to train on real
	// data. Fewer trips, or exactly MinRecords, select the fallback.
	MinRecords int
	Synthetic  SyntheticConfig
}

// Load returns the training records and their source.
func (d TrainingData) Load(ctx context.Context) ([]fare.TripRecord, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	logger := log.GetLoggerWithName("dataset")

	if d.Path != "" {
		if _, err := os.Stat(d.Path); os.IsNotExist(err) {
			logger.Info("Trip data not found, using synthetic data", "data.path", d.Path)
		} else {
			records, err := LoadCSV(d.Path)
			if err != nil {
				return nil, "", err
			}
			labelled := Labelled(records)
			if len(labelled) > d.MinRecords {
				logger.Info("Loaded trip data", "data.path", d.Path, log.SamplesKey, len(labelled))
				return labelled, SourceCSV, nil
			}
			logger.Info("Too few labelled trips, using synthetic data",
				log.SamplesKey, len(labelled), "data.min_records", d.MinRecords)
		}
	}

	records := Synthetic(d.Synthetic)
	logger.Info("Generated synthetic trips", log.SamplesKey, len(records))
	return records, SourceSynthetic, nil
}

// Labelled returns the records with a fare.
func Labelled(records []fare.TripRecord) []fare.TripRecord {
	out := make([]fare.TripRecord, 0, len(records))
	for _, rec := range records {
		if !math.IsNaN(rec.Fare) {
			out = append(out, rec)
		}
	}
	return out
}
