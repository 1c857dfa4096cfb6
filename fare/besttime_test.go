package fare

import (
	"testing"
	"time"

	"github.com/YuminosukeSato/farecast/pkg/errors"
)

func TestPredictBestTimeScenario(t *testing.T) {
	m := trainedModel(t)

	rec, err := m.PredictBestTime(BestTimeQuery{
		DistanceKm:      15,
		TransportType:   "cab",
		ServiceProvider: "obeer",
		HoursAhead:      24,
	})
	if err != nil {
		t.Fatalf("PredictBestTime: %v", err)
	}
	if rec.CurrentFare == nil {
		t.Fatal("offset 0 should succeed for known categories")
	}
	if rec.BestFare > *rec.CurrentFare {
		t.Errorf("best %v > current %v", rec.BestFare, *rec.CurrentFare)
	}
	if rec.Savings < 0 || rec.Savings != *rec.CurrentFare-rec.BestFare {
		t.Errorf("savings = %v, current %v best %v", rec.Savings, *rec.CurrentFare, rec.BestFare)
	}
	if len(rec.Predictions) != MaxPreviewSlots {
		t.Errorf("preview has %d slots, want %d", len(rec.Predictions), MaxPreviewSlots)
	}
	for i, s := range rec.Predictions {
		if s.Offset != i || !s.Time.Equal(fixedNow.Add(time.Duration(i)*time.Hour)) || s.Hour != s.Time.Hour() {
			t.Errorf("slot %d out of order: %+v", i, s)
		}
		if s.IsRushHour != IsRushHour(s.Hour) {
			t.Errorf("slot %d rush flag wrong", i)
		}
	}
	if !rec.BestTime.Equal(fixedNow.Add(time.Duration(rec.WaitHours) * time.Hour)) {
		t.Errorf("BestTime %v does not match WaitHours %d", rec.BestTime, rec.WaitHours)
	}
}

func TestPredictBestTimeIsMinimumOverHorizon(t *testing.T) {
	m := trainedModel(t)
	b, _ := m.Bundle()

	q := BestTimeQuery{DistanceKm: 9, TransportType: "auto", ServiceProvider: "yela", HoursAhead: 30, Now: fixedNow}
	rec, err := b.PredictBestTime(q)
	if err != nil {
		t.Fatal(err)
	}

	firstMin := -1
	for offset := 0; offset < 30; offset++ {
		slot := b.predictSlot(q, offset)
		if slot.err != nil {
			t.Fatal(slot.err)
		}
		if rec.BestFare > slot.slot.Fare {
			t.Errorf("best %v exceeds fare %v at offset %d", rec.BestFare, slot.slot.Fare, offset)
		}
		if firstMin < 0 && slot.slot.Fare == rec.BestFare {
			firstMin = offset
		}
	}
	if rec.WaitHours != firstMin {
		t.Errorf("ties must go to the earliest slot: WaitHours %d, first minimum at %d", rec.WaitHours, firstMin)
	}
}

func TestPredictBestTimeRushHourDuration(t *testing.T) {
	m := trainedModel(t)
	b, _ := m.Bundle()

	// fixedNow is 06:00, so offset 2 is 08:00
	q := BestTimeQuery{DistanceKm: 10, TransportType: "cab", ServiceProvider: "obeer", Now: fixedNow}
	slot := b.predictSlot(q, 2)
	want, err := b.PredictFare(TripRecord{DistanceKm: 10, DurationMins: 45, Hour: 8, DayOfWeek: 0, TransportType: "cab", ServiceProvider: "obeer"})
	if err != nil {
		t.Fatal(err)
	}
	if slot.err != nil || slot.slot.Fare != want || !slot.slot.IsRushHour {
		t.Errorf("rush slot = %+v, want fare %v", slot.slot, want)
	}
}

func TestPredictBestTimeDefaultsAndErrors(t *testing.T) {
	m := trainedModel(t)
	b, _ := m.Bundle()

	rec, err := b.PredictBestTime(BestTimeQuery{DistanceKm: 5, TransportType: "bike", ServiceProvider: "obeer", Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	if rec.WaitHours < 0 || rec.WaitHours >= DefaultHoursAhead {
		t.Errorf("WaitHours %d outside default horizon", rec.WaitHours)
	}

	short, err := b.PredictBestTime(BestTimeQuery{DistanceKm: 5, TransportType: "bike", ServiceProvider: "obeer", HoursAhead: 3, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	if len(short.Predictions) != 3 {
		t.Errorf("3-hour horizon preview has %d slots", len(short.Predictions))
	}

	if _, err := b.PredictBestTime(BestTimeQuery{DistanceKm: 5, TransportType: "rocket", ServiceProvider: "obeer", Now: fixedNow}); !errors.Is(err, ErrNoRecommendation) {
		t.Errorf("expected ErrNoRecommendation, got %v", err)
	}

	var ve *errors.ValidationError
	if _, err := b.PredictBestTime(BestTimeQuery{DistanceKm: 5, TransportType: "bike", ServiceProvider: "obeer"}); !errors.As(err, &ve) {
		t.Errorf("zero Now: expected ValidationError, got %v", err)
	}
	if _, err := b.PredictBestTime(BestTimeQuery{DistanceKm: 0, TransportType: "bike", ServiceProvider: "obeer", Now: fixedNow}); !errors.As(err, &ve) {
		t.Errorf("zero distance: expected ValidationError, got %v", err)
	}
}
