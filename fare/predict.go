package fare

import (
	"math"

	"github.com/YuminosukeSato/farecast/pkg/errors"
)

// BatchPrediction is one cell of PredictBatch's cross product.
type BatchPrediction struct {
	TransportType   string  `json:"transport_type"`
	ServiceProvider string  `json:"service_provider"`
	Fare            float64 `json:"predicted_fare"`
}

// PredictFare estimates the fare of rec with this bundle. The result is
// never negative.
func (b *Bundle) PredictFare(rec TripRecord) (float64, error) {
	row, err := Derive(rec, b.Encoders)
	if err != nil {
		return 0, err
	}
	scaled, err := b.Scaler.TransformRow(row)
	if err != nil {
		return 0, errors.Wrap(err, "scale features")
	}
	y, err := b.Regressor.PredictRow(scaled)
	if err != nil {
		return 0, errors.Wrap(err, "predict")
	}
	return math.Max(0, y), nil
}

// PredictBatch predicts every transport × provider combination for one
// trip. Combinations with an unseen category are skipped; any other error
// aborts the batch.
func (b *Bundle) PredictBatch(base TripRecord, transports, providers []string) ([]BatchPrediction, error) {
	out := make([]BatchPrediction, 0, len(transports)*len(providers))
	for _, transport := range transports {
		for _, provider := range providers {
			rec := base
			rec.TransportType = transport
			rec.ServiceProvider = provider
			fare, err := b.PredictFare(rec)
			var uce *errors.UnknownCategoryError
			switch {
			case errors.As(err, &uce):
				continue
			case err != nil:
				return nil, err
			}
			out = append(out, BatchPrediction{
				TransportType:   transport,
				ServiceProvider: provider,
				Fare:            fare,
			})
		}
	}
	return out, nil
}
