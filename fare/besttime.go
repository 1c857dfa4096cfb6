package fare

import (
	"math"
	"time"

	"github.com/YuminosukeSato/farecast/core/parallel"
	"github.com/YuminosukeSato/farecast/pkg/errors"
)

// DefaultHoursAhead is the search horizon when none is given.
const DefaultHoursAhead = 24

// MaxPreviewSlots caps Recommendation.Predictions.
const MaxPreviewSlots = 12

// ErrNoRecommendation is returned when no slot in the horizon could be
// predicted.
var ErrNoRecommendation = errors.New("farecast: no slot in the horizon could be predicted")

// BestTimeQuery asks for the cheapest slot in [Now, Now+HoursAhead).
type BestTimeQuery struct {
	DistanceKm      float64
	TransportType   string
	ServiceProvider string
	// HoursAhead <= 0 means DefaultHoursAhead.
	HoursAhead int
	// Now is the reference time; the search is a pure function of it.
	Now time.Time
}

// SlotPrediction is the predicted fare of one hourly slot.
type SlotPrediction struct {
	Offset     int       `json:"offset"`
	Hour       int       `json:"hour"`
	Time       time.Time `json:"time"`
	Fare       float64   `json:"fare"`
	IsRushHour bool      `json:"is_rush_hour"`
}

// Recommendation is the result of a best-time search.
type Recommendation struct {
	// CurrentFare is the fare at offset 0, nil when that slot was skipped.
	CurrentFare *float64
	BestTime    time.Time
	BestHour    int
	BestFare    float64
	Savings     float64
	WaitHours   int
	// Predictions holds the first MaxPreviewSlots successful slots in
	// chronological order; it need not contain the best slot.
	Predictions []SlotPrediction
}

type slotResult struct {
	slot SlotPrediction
	err  error
}

// PredictBestTime scans hourly offsets from q.Now and returns the slot with
// the lowest predicted fare, ties to the earliest. Offsets whose prediction
// fails with UnknownCategoryError are skipped.
func (b *Bundle) PredictBestTime(q BestTimeQuery) (*Recommendation, error) {
	if q.Now.IsZero() {
		return nil, errors.NewValidationError("now", "reference time is required", q.Now)
	}
	if math.IsNaN(q.DistanceKm) || math.IsInf(q.DistanceKm, 0) || q.DistanceKm <= 0 {
		return nil, errors.NewValidationError("distance_km", "must be a positive finite number", q.DistanceKm)
	}
	hours := q.HoursAhead
	if hours <= 0 {
		hours = DefaultHoursAhead
	}

	results := make([]slotResult, hours)
	parallel.Parallelize(hours, func(start, end int) {
		for offset := start; offset < end; offset++ {
			results[offset] = b.predictSlot(q, offset)
		}
	})

	var rec Recommendation
	found := false
	for _, r := range results {
		var uce *errors.UnknownCategoryError
		switch {
		case errors.As(r.err, &uce):
			continue
		case r.err != nil:
			return nil, errors.Wrapf(r.err, "predict offset %d", r.slot.Offset)
		}

		s := r.slot
		if s.Offset == 0 {
			current := s.Fare
			rec.CurrentFare = &current
		}
		if !found || s.Fare < rec.BestFare {
			rec.BestFare = s.Fare
			rec.BestTime = s.Time
			rec.BestHour = s.Hour
			rec.WaitHours = s.Offset
			found = true
		}
		if len(rec.Predictions) < MaxPreviewSlots {
			rec.Predictions = append(rec.Predictions, s)
		}
	}
	if !found {
		return nil, ErrNoRecommendation
	}
	if rec.CurrentFare != nil {
		rec.Savings = math.Max(0, *rec.CurrentFare-rec.BestFare)
	}
	return &rec, nil
}

func (b *Bundle) predictSlot(q BestTimeQuery, offset int) slotResult {
	t := q.Now.Add(time.Duration(offset) * time.Hour)
	hour := t.Hour()
	rush := IsRushHour(hour)
	duration := q.DistanceKm * 3
	if rush {
		duration *= 1.5
	}

	fare, err := b.PredictFare(TripRecord{
		DistanceKm:      q.DistanceKm,
		DurationMins:    duration,
		Hour:            hour,
		DayOfWeek:       Weekday(t),
		TransportType:   q.TransportType,
		ServiceProvider: q.ServiceProvider,
		Fare:            math.NaN(),
	})
	return slotResult{
		slot: SlotPrediction{
			Offset:     offset,
			Hour:       hour,
			Time:       t,
			Fare:       fare,
			IsRushHour: rush,
		},
		err: err,
	}
}
