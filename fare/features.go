// Package fare implements the fare-prediction pipeline: feature derivation
// from trip attributes, training of the bundle of fitted components, single
// and batch prediction, and the best-time search over future hourly slots.
package fare

import (
	"fmt"
	"math"
	"time"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/preprocessing"
)

// Categorical fields encoded by the registry.
const (
	FieldTransportType   = "transport_type"
	FieldServiceProvider = "service_provider"
)

// DefaultAvgSpeed is the avg_speed feature in km/h used when the duration
// is unknown.
const DefaultAvgSpeed = 20.0

// NumFeatures is the arity of a feature vector.
const NumFeatures = 9

// FeatureColumns is the canonical feature order. Every bundle must record
// exactly this order.
var FeatureColumns = []string{
	"distance_km",
	"duration_mins",
	"hour",
	"day_of_week",
	"is_weekend",
	"is_rush_hour",
	"avg_speed",
	"transport_type_encoded",
	"service_provider_encoded",
}

// RushHours are the hours of day treated as rush hour.
var RushHours = []int{7, 8, 9, 17, 18, 19}

// TripRecord is one ride, either historical (with Fare) or a query.
// DurationMins <= 0 means unknown. A NaN Fare means the record has no label.
type TripRecord struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMins    float64 `json:"duration_mins"`
	Hour            int     `json:"hour"`
	DayOfWeek       int     `json:"day_of_week"`
	TransportType   string  `json:"transport_type"`
	ServiceProvider string  `json:"service_provider"`
	Fare            float64 `json:"fare"`
}

// IsWeekend reports whether day (0 = Monday) is Saturday or Sunday.
func IsWeekend(day int) bool {
	return day == 5 || day == 6
}

// IsRushHour reports whether hour is in RushHours.
func IsRushHour(hour int) bool {
	for _, h := range RushHours {
		if h == hour {
			return true
		}
	}
	return false
}

// AvgSpeed returns distance per hour, or DefaultAvgSpeed when the duration
// is unknown.
func AvgSpeed(distanceKm, durationMins float64) float64 {
	if durationMins <= 0 {
		return DefaultAvgSpeed
	}
	return distanceKm / (durationMins / 60)
}

// Weekday returns the Monday-based day of week (0 = Monday) of t.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Derive builds the feature vector of rec in FeatureColumns order.
// Unseen categories fail with UnknownCategoryError; out-of-range numeric
// attributes fail with ValidationError.
func Derive(rec TripRecord, reg *preprocessing.EncoderRegistry) ([]float64, error) {
	transport, err := reg.Encode(FieldTransportType, rec.TransportType)
	if err != nil {
		return nil, err
	}
	provider, err := reg.Encode(FieldServiceProvider, rec.ServiceProvider)
	if err != nil {
		return nil, err
	}

	if err := rec.validate(); err != nil {
		return nil, err
	}

	return []float64{
		rec.DistanceKm,
		rec.DurationMins,
		float64(rec.Hour),
		float64(rec.DayOfWeek),
		boolFloat(IsWeekend(rec.DayOfWeek)),
		boolFloat(IsRushHour(rec.Hour)),
		AvgSpeed(rec.DistanceKm, rec.DurationMins),
		float64(transport),
		float64(provider),
	}, nil
}

func (rec TripRecord) validate() error {
	if math.IsNaN(rec.DistanceKm) || math.IsInf(rec.DistanceKm, 0) || rec.DistanceKm <= 0 {
		return errors.NewValidationError("distance_km", "must be a positive finite number", rec.DistanceKm)
	}
	if math.IsNaN(rec.DurationMins) || math.IsInf(rec.DurationMins, 0) {
		return errors.NewValidationError("duration_mins", "must be finite", rec.DurationMins)
	}
	if rec.Hour < 0 || rec.Hour > 23 {
		return errors.NewValidationError("hour", "must be in [0, 23]", rec.Hour)
	}
	if rec.DayOfWeek < 0 || rec.DayOfWeek > 6 {
		return errors.NewValidationError("day_of_week", "must be in [0, 6]", rec.DayOfWeek)
	}
	return nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Query is a prediction request whose optional fields default from the
// reference time.
type Query struct {
	DistanceKm      float64
	DurationMins    *float64
	Hour            *int
	DayOfWeek       *int
	TransportType   string
	ServiceProvider string
}

// Resolve fills unset fields: duration = distance*3 minutes, hour and day
// of week from now.
func (q Query) Resolve(now time.Time) TripRecord {
	rec := TripRecord{
		DistanceKm:      q.DistanceKm,
		DurationMins:    q.DistanceKm * 3,
		Hour:            now.Hour(),
		DayOfWeek:       Weekday(now),
		TransportType:   q.TransportType,
		ServiceProvider: q.ServiceProvider,
		Fare:            math.NaN(),
	}
	if q.DurationMins != nil {
		rec.DurationMins = *q.DurationMins
	}
	if q.Hour != nil {
		rec.Hour = *q.Hour
	}
	if q.DayOfWeek != nil {
		rec.DayOfWeek = *q.DayOfWeek
	}
	return rec
}

// String formats the record for logs.
func (rec TripRecord) String() string {
	return fmt.Sprintf("%s/%s %.1fkm %.0fmin h%d d%d",
		rec.TransportType, rec.ServiceProvider, rec.DistanceKm, rec.DurationMins, rec.Hour, rec.DayOfWeek)
}
