package dataset

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
)

// DefaultHistoryDays is the look-back window of ReadHistory.
const DefaultHistoryDays = 90

// HistoryRecord is one saved route search as exported from the history
// collection. Distance and Duration are display strings such as "5.2 km"
// and "1 hour 20 mins".
type HistoryRecord struct {
	UserID      string      `json:"userId"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Distance    string      `json:"distance"`
	Duration    string      `json:"duration"`
	CreatedAt   historyTime `json:"createdAt"`
	Timestamp   historyTime `json:"timestamp"`
}

// Time returns createdAt, falling back to timestamp.
func (h HistoryRecord) Time() time.Time {
	if !h.CreatedAt.IsZero() {
		return h.CreatedAt.Time
	}
	return h.Timestamp.Time
}

// Trip converts h to an unlabelled trip. Transport and provider are not
// recorded in history and stay empty.
func (h HistoryRecord) Trip() fare.TripRecord {
	ts := h.Time()
	return fare.TripRecord{
		DistanceKm:   ParseDistance(h.Distance),
		DurationMins: ParseDuration(h.Duration),
		Hour:         ts.Hour(),
		DayOfWeek:    fare.Weekday(ts),
		Fare:         math.NaN(),
	}
}

// historyTime accepts an RFC 3339 string, epoch milliseconds, or the
// extended JSON form {"$date": ...}.
type historyTime struct {
	time.Time
}

func (t *historyTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '{':
		var wrapped struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if wrapped.Date == nil {
			return nil
		}
		return t.UnmarshalJSON(wrapped.Date)
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	default:
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return errors.NewValidationError("createdAt", "unrecognised time value", string(data))
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
}

// ParseDistance reads the leading number of a distance string such as
// "5.2 km". Anything unparseable yields 0.
func ParseDistance(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// ParseDuration converts "45 mins", "1 hour 20 mins" or "2 hours" to
// minutes. A bare number is minutes. Unparseable parts count as 0.
func ParseDuration(s string) float64 {
	fields := strings.Fields(strings.ToLower(s))
	var total float64
	for i := 0; i < len(fields); i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || v < 0 {
			continue
		}
		unit := ""
		if i+1 < len(fields) {
			unit = fields[i+1]
		}
		switch {
		case strings.HasPrefix(unit, "day"):
			total += v * 24 * 60
			i++
		case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
			total += v * 60
			i++
		case strings.HasPrefix(unit, "min"):
			total += v
			i++
		default:
			total += v
		}
	}
	return total
}

// LoadHistory reads a history export file. See ReadHistory.
func LoadHistory(path string, now time.Time, days int) ([]fare.TripRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadHistory(f, now, days)
}

// ReadHistory decodes history records (a JSON array or one object per
// line) and keeps those created within days before now. days <= 0 means
// DefaultHistoryDays. Records without a time are dropped.
func ReadHistory(r io.Reader, now time.Time, days int) ([]fare.TripRecord, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	raw, err := decodeHistory(r)
	if err != nil {
		return nil, err
	}
	trips := make([]fare.TripRecord, 0, len(raw))
	for _, h := range raw {
		ts := h.Time()
		if ts.IsZero() || ts.Before(cutoff) {
			continue
		}
		trips = append(trips, h.Trip())
	}
	return trips, nil
}

func decodeHistory(r io.Reader) ([]HistoryRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read history")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var out []HistoryRecord
	if data[0] == '[' {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.NewValidationError("history", "undecodable JSON array: "+err.Error(), nil)
		}
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for n := 1; ; n++ {
		var h HistoryRecord
		err := dec.Decode(&h)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.NewValidationError("history", "undecodable record "+strconv.Itoa(n)+": "+err.Error(), nil)
		}
		out = append(out, h)
	}
}
