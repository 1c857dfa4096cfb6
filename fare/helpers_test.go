package fare

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
)

var (
	testTransports = []string{"bike", "auto", "cab"}
	testProviders  = []string{"obeer", "radipoo", "yela"}
)

// syntheticTrips returns n labelled trips covering every transport ×
// provider combination, with fares rising in distance and in rush hour.
func syntheticTrips(n int, seed uint64) []TripRecord {
	rates := map[string][2]float64{"bike": {10, 5}, "auto": {20, 10}, "cab": {30, 15}}
	mult := map[string]float64{"obeer": 1.0, "radipoo": 0.95, "yela": 1.05}
	r := rand.New(rand.NewPCG(seed, seed))

	trips := make([]TripRecord, n)
	for i := range trips {
		d := 1 + 29*r.Float64()
		hour := r.IntN(24)
		day := r.IntN(7)
		transport := testTransports[i%3]
		provider := testProviders[(i/3)%3]

		duration := d * 3
		surge := 1.0
		if IsRushHour(hour) {
			duration *= 1.5
			surge = 1.5
		}
		if IsWeekend(day) {
			duration *= 0.9
		}
		rate := rates[transport]
		trips[i] = TripRecord{
			DistanceKm:      d,
			DurationMins:    duration,
			Hour:            hour,
			DayOfWeek:       day,
			TransportType:   transport,
			ServiceProvider: provider,
			Fare:            (rate[0] + rate[1]*d) * surge * mult[provider],
		}
	}
	return trips
}

func smallForest() ensemble.Params {
	p := ensemble.DefaultParams()
	p.NEstimators = 15
	return p
}

var fixedNow = time.Date(2024, time.March, 4, 6, 0, 0, 0, time.UTC) // Monday 06:00

func fixedClock() time.Time { return time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC) }

func trainedModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel(WithModelClock(func() time.Time { return fixedNow }))
	if _, err := m.Train(syntheticTrips(300, 42), WithForestParams(smallForest()), WithClock(fixedClock)); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return m
}
