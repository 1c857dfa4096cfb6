package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
)

// Column names of the trip CSV. Either hour and day_of_week or timestamp
// must be present; extra columns are ignored.
const (
	ColDistance  = "distance_km"
	ColDuration  = "duration_mins"
	ColHour      = "hour"
	ColDay       = "day_of_week"
	ColTimestamp = "timestamp"
	ColTransport = "transport_type"
	ColProvider  = "service_provider"
	ColFare      = "fare"
)

var header = []string{ColDistance, ColDuration, ColHour, ColDay, ColTransport, ColProvider, ColFare}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// LoadCSV reads trips from a CSV file.
func LoadCSV(path string) ([]fare.TripRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads trips with a header row. A missing or empty fare column
// yields NaN fares (unlabelled); a missing duration yields 0 (unknown).
func ReadCSV(r io.Reader) ([]fare.TripRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	head, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read CSV header")
	}
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{ColDistance, ColTransport, ColProvider} {
		if _, ok := cols[required]; !ok {
			return nil, errors.NewValidationError("csv", "missing column "+required, head)
		}
	}
	_, hasHour := cols[ColHour]
	_, hasDay := cols[ColDay]
	_, hasTS := cols[ColTimestamp]
	if !(hasHour && hasDay) && !hasTS {
		return nil, errors.NewValidationError("csv", "need hour and day_of_week, or timestamp", head)
	}

	var records []fare.TripRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read CSV line %d", line)
		}
		rec, err := parseRow(row, cols, hasHour && hasDay)
		if err != nil {
			return nil, errors.Wrapf(err, "CSV line %d", line)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int, explicitTime bool) (fare.TripRecord, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec fare.TripRecord
	var err error
	if rec.DistanceKm, err = strconv.ParseFloat(get(ColDistance), 64); err != nil {
		return rec, errors.NewValidationError(ColDistance, "not a number", get(ColDistance))
	}
	if s := get(ColDuration); s != "" {
		if rec.DurationMins, err = strconv.ParseFloat(s, 64); err != nil {
			return rec, errors.NewValidationError(ColDuration, "not a number", s)
		}
	}

	if explicitTime {
		if rec.Hour, err = strconv.Atoi(get(ColHour)); err != nil {
			return rec, errors.NewValidationError(ColHour, "not an integer", get(ColHour))
		}
		if rec.DayOfWeek, err = strconv.Atoi(get(ColDay)); err != nil {
			return rec, errors.NewValidationError(ColDay, "not an integer", get(ColDay))
		}
	} else {
		ts, err := parseTimestamp(get(ColTimestamp))
		if err != nil {
			return rec, err
		}
		rec.Hour = ts.Hour()
		rec.DayOfWeek = fare.Weekday(ts)
	}

	rec.TransportType = get(ColTransport)
	rec.ServiceProvider = get(ColProvider)

	rec.Fare = math.NaN()
	if s := get(ColFare); s != "" {
		if rec.Fare, err = strconv.ParseFloat(s, 64); err != nil {
			return rec, errors.NewValidationError(ColFare, "not a number", s)
		}
	}
	return rec, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewValidationError(ColTimestamp, "unrecognised time format", s)
}

// WriteCSV writes trips with a header row. NaN fares are written empty.
func WriteCSV(w io.Writer, records []fare.TripRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write CSV header")
	}
	for _, rec := range records {
		fareStr := ""
		if !math.IsNaN(rec.Fare) {
			fareStr = strconv.FormatFloat(rec.Fare, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatFloat(rec.DistanceKm, 'f', -1, 64),
			strconv.FormatFloat(rec.DurationMins, 'f', -1, 64),
			strconv.Itoa(rec.Hour),
			strconv.Itoa(rec.DayOfWeek),
			rec.TransportType,
			rec.ServiceProvider,
			fareStr,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write CSV row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush CSV")
}

// SaveCSV writes trips to path.
func SaveCSV(path string, records []fare.TripRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return WriteCSV(f, records)
}
