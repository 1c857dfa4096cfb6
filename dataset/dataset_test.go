package dataset

import (
	"bytes"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
)

var refNow = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestSynthetic(t *testing.T) {
	recs := Synthetic(SyntheticConfig{Samples: 200, Seed: 42, Now: refNow})
	if len(recs) != 600 {
		t.Fatalf("len = %d, want 600", len(recs))
	}

	seen := map[string]bool{}
	for i, rec := range recs {
		if rec.DistanceKm < 1 || rec.DistanceKm > 30 {
			t.Errorf("row %d: distance %v out of [1,30]", i, rec.DistanceKm)
		}
		if rec.DurationMins < 5 {
			t.Errorf("row %d: duration %v below floor", i, rec.DurationMins)
		}
		if rec.Hour < 0 || rec.Hour > 23 || rec.DayOfWeek < 0 || rec.DayOfWeek > 6 {
			t.Errorf("row %d: bad time %d/%d", i, rec.Hour, rec.DayOfWeek)
		}
		if base := DefaultRates[rec.TransportType].Base; rec.Fare < base {
			t.Errorf("row %d: fare %v below base %v", i, rec.Fare, base)
		}
		seen[rec.ServiceProvider] = true
	}
	for _, p := range DefaultProviders {
		if !seen[p] {
			t.Errorf("provider %s never generated", p)
		}
	}

	// Each trip yields bike, auto, cab in order with shared trip features.
	for i := 0; i+2 < len(recs); i += 3 {
		if recs[i].TransportType != "bike" || recs[i+1].TransportType != "auto" || recs[i+2].TransportType != "cab" {
			t.Fatalf("rows %d..%d: unexpected transport order", i, i+2)
		}
		if recs[i].DistanceKm != recs[i+2].DistanceKm || recs[i].Hour != recs[i+2].Hour {
			t.Fatalf("rows %d..%d: trip features differ", i, i+2)
		}
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	a := Synthetic(SyntheticConfig{Samples: 50, Seed: 7, Now: refNow})
	b := Synthetic(SyntheticConfig{Samples: 50, Seed: 7, Now: refNow})
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different records")
	}
	c := Synthetic(SyntheticConfig{Samples: 50, Seed: 8, Now: refNow})
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical records")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	recs := Synthetic(SyntheticConfig{Samples: 20, Seed: 1, Now: refNow})
	recs[0].Fare = math.NaN()

	path := filepath.Join(t.TempDir(), "trips.csv")
	if err := SaveCSV(path, recs); err != nil {
		t.Fatalf("SaveCSV: %v", err)
	}
	got, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("len = %d, want %d", len(got), len(recs))
	}
	if !math.IsNaN(got[0].Fare) {
		t.Errorf("empty fare should load as NaN, got %v", got[0].Fare)
	}
	for i := 1; i < len(recs); i++ {
		if got[i] != recs[i] {
			t.Fatalf("row %d: got %+v, want %+v", i, got[i], recs[i])
		}
	}
}

func TestReadCSVTimestamp(t *testing.T) {
	input := "distance_km,duration_mins,transport_type,service_provider,fare,timestamp,surge_multiplier\n" +
		"5.5,16.5,cab,yela,120.5,2024-03-09 18:30:00,1.4\n" +
		"3,,bike,obeer,,2024-03-04T08:00:00Z,1.0\n"

	got, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	want := []fare.TripRecord{
		{DistanceKm: 5.5, DurationMins: 16.5, Hour: 18, DayOfWeek: 5, TransportType: "cab", ServiceProvider: "yela", Fare: 120.5},
		{DistanceKm: 3, Hour: 8, DayOfWeek: 0, TransportType: "bike", ServiceProvider: "obeer"},
	}
	if got[0] != want[0] {
		t.Errorf("row 0: got %+v, want %+v", got[0], want[0])
	}
	g1 := got[1]
	g1.Fare = 0
	if g1 != want[1] || !math.IsNaN(got[1].Fare) {
		t.Errorf("row 1: got %+v, want %+v with NaN fare", got[1], want[1])
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no time columns", "distance_km,transport_type,service_provider\n1,cab,yela\n"},
		{"missing transport", "distance_km,hour,day_of_week,service_provider\n1,2,3,yela\n"},
		{"bad distance", "distance_km,hour,day_of_week,transport_type,service_provider\nfar,2,3,cab,yela\n"},
		{"bad hour", "distance_km,hour,day_of_week,transport_type,service_provider\n1,noon,3,cab,yela\n"},
		{"bad timestamp", "distance_km,timestamp,transport_type,service_provider\n1,yesterday,cab,yela\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("want ValidationError, got %v", err)
			}
		})
	}

	if _, err := ReadCSV(&bytes.Buffer{}); err == nil {
		t.Error("empty input should fail")
	}
}
