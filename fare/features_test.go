package fare

import (
	"math"
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/preprocessing"
	"gonum.org/v1/gonum/floats"
)

func testRegistry(t *testing.T) *preprocessing.EncoderRegistry {
	t.Helper()
	reg, err := preprocessing.FitEncoderRegistry(map[string][]string{
		FieldTransportType:   testTransports,
		FieldServiceProvider: testProviders,
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestDerive(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name string
		rec  TripRecord
		want []float64
	}{
		{
			name: "weekday rush hour cab",
			rec:  TripRecord{DistanceKm: 10, DurationMins: 30, Hour: 8, DayOfWeek: 2, TransportType: "cab", ServiceProvider: "yela"},
			want: []float64{10, 30, 8, 2, 0, 1, 20, 2, 2},
		},
		{
			name: "weekend off peak bike",
			rec:  TripRecord{DistanceKm: 6, DurationMins: 12, Hour: 14, DayOfWeek: 6, TransportType: "bike", ServiceProvider: "obeer"},
			want: []float64{6, 12, 14, 6, 1, 0, 30, 1, 0},
		},
		{
			name: "unknown duration uses default speed",
			rec:  TripRecord{DistanceKm: 45, DurationMins: 0, Hour: 19, DayOfWeek: 5, TransportType: "auto", ServiceProvider: "radipoo"},
			want: []float64{45, 0, 19, 5, 1, 1, DefaultAvgSpeed, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.rec, reg)
			if err != nil {
				t.Fatalf("Derive: %v", err)
			}
			if len(got) != len(FeatureColumns) {
				t.Fatalf("arity = %d, want %d", len(got), len(FeatureColumns))
			}
			if !floats.EqualApprox(got, tt.want, 1e-12) {
				t.Errorf("Derive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveErrors(t *testing.T) {
	reg := testRegistry(t)
	valid := TripRecord{DistanceKm: 5, DurationMins: 15, Hour: 10, DayOfWeek: 1, TransportType: "cab", ServiceProvider: "obeer"}

	var uce *errors.UnknownCategoryError
	rec := valid
	rec.TransportType = "helicopter"
	if _, err := Derive(rec, reg); !errors.As(err, &uce) || uce.Field != FieldTransportType {
		t.Errorf("expected UnknownCategoryError on transport_type, got %v", err)
	}
	rec = valid
	rec.ServiceProvider = "acme"
	if _, err := Derive(rec, reg); !errors.As(err, &uce) || uce.Field != FieldServiceProvider {
		t.Errorf("expected UnknownCategoryError on service_provider, got %v", err)
	}

	invalid := []struct {
		name   string
		mutate func(*TripRecord)
	}{
		{"zero distance", func(r *TripRecord) { r.DistanceKm = 0 }},
		{"NaN distance", func(r *TripRecord) { r.DistanceKm = math.NaN() }},
		{"infinite duration", func(r *TripRecord) { r.DurationMins = math.Inf(1) }},
		{"hour 24", func(r *TripRecord) { r.Hour = 24 }},
		{"negative hour", func(r *TripRecord) { r.Hour = -1 }},
		{"day 7", func(r *TripRecord) { r.DayOfWeek = 7 }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			var ve *errors.ValidationError
			if _, err := Derive(rec, reg); !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	for h := 0; h < 24; h++ {
		want := h == 7 || h == 8 || h == 9 || h == 17 || h == 18 || h == 19
		if IsRushHour(h) != want {
			t.Errorf("IsRushHour(%d) = %v", h, !want)
		}
	}
	for d := 0; d < 7; d++ {
		if IsWeekend(d) != (d >= 5) {
			t.Errorf("IsWeekend(%d) wrong", d)
		}
	}
	if AvgSpeed(10, 30) != 20 || AvgSpeed(10, -1) != DefaultAvgSpeed {
		t.Error("AvgSpeed wrong")
	}

	// 2024-03-04 is a Monday, 2024-03-10 a Sunday
	if Weekday(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) != 0 {
		t.Error("Monday should be 0")
	}
	if Weekday(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) != 6 {
		t.Error("Sunday should be 6")
	}
}

func TestQueryResolve(t *testing.T) {
	now := time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC) // Saturday

	rec := Query{DistanceKm: 10, TransportType: "cab", ServiceProvider: "obeer"}.Resolve(now)
	if rec.DurationMins != 30 || rec.Hour != 18 || rec.DayOfWeek != 5 {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if !math.IsNaN(rec.Fare) {
		t.Error("resolved query must carry no label")
	}

	dur, hour, day := 12.0, 3, 1
	rec = Query{DistanceKm: 10, DurationMins: &dur, Hour: &hour, DayOfWeek: &day}.Resolve(now)
	if rec.DurationMins != 12 || rec.Hour != 3 || rec.DayOfWeek != 1 {
		t.Errorf("explicit values overridden: %+v", rec)
	}
}
