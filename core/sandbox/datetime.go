package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// dateOp is one queued guest-side DateTime operation.
type dateOp struct {
	Op     string             `json:"op"`
	Unit   string             `json:"unit,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

const (
	outputDateTime = "datetime"
	outputDate     = "date"

	isoDateTimeLayout = "2006-01-02T15:04:05.000Z07:00"
	calendarLayout    = "2006-01-02"
)

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// replayDate applies a queued operation list to an ISO literal and renders
// the result in the requested output form.
func replayDate(literal, opsJSON, output string, loc *time.Location) (string, error) {
	t, err := parseDateLiteral(literal, loc)
	if err != nil {
		return "", err
	}

	var ops []dateOp
	if opsJSON != "" {
		if err := json.Unmarshal([]byte(opsJSON), &ops); err != nil {
			return "", fmt.Errorf("decoding date operations: %w", err)
		}
	}

	for _, op := range ops {
		switch op.Op {
		case "startOf":
			t, err = startOf(t, op.Unit)
		case "endOf":
			t, err = endOf(t, op.Unit)
		case "plus":
			t, err = shift(t, op.Values, 1)
		case "minus":
			t, err = shift(t, op.Values, -1)
		case "set":
			t, err = setFields(t, op.Values)
		default:
			err = fmt.Errorf("unknown date operation %q", op.Op)
		}
		if err != nil {
			return "", err
		}
	}

	switch output {
	case outputDateTime:
		return t.Format(isoDateTimeLayout), nil
	case outputDate:
		return t.Format(calendarLayout), nil
	}
	return "", fmt.Errorf("unknown date output %q", output)
}

// parseDateLiteral accepts an instant with offset, or a local date-time or
// date interpreted in loc.
func parseDateLiteral(literal string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, literal); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, literal, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO date literal %q", literal)
}

func normalizeUnit(unit string) string {
	return strings.TrimSuffix(strings.ToLower(unit), "s")
}

func startOf(t time.Time, unit string) (time.Time, error) {
	y, m, d := t.Date()
	loc := t.Location()
	switch normalizeUnit(unit) {
	case "year":
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), nil
	case "quarter":
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, loc), nil
	case "month":
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	case "week":
		// ISO weeks start on Monday
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc), nil
	case "day":
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case "hour":
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc), nil
	case "minute":
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
	case "second":
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unknown unit %q", unit)
}

// endOf is the last millisecond of the unit containing t.
func endOf(t time.Time, unit string) (time.Time, error) {
	start, err := startOf(t, unit)
	if err != nil {
		return time.Time{}, err
	}
	var next time.Time
	switch normalizeUnit(unit) {
	case "year":
		next = start.AddDate(1, 0, 0)
	case "quarter":
		next = start.AddDate(0, 3, 0)
	case "month":
		next = start.AddDate(0, 1, 0)
	case "week":
		next = start.AddDate(0, 0, 7)
	case "day":
		next = start.AddDate(0, 0, 1)
	case "hour":
		next = start.Add(time.Hour)
	case "minute":
		next = start.Add(time.Minute)
	case "second":
		next = start.Add(time.Second)
	}
	return next.Add(-time.Millisecond), nil
}

func wholeNumber(name string, v float64) (int, error) {
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number, got %v", name, v)
	}
	return int(v), nil
}

// shift adds (sign=1) or subtracts (sign=-1) a duration. Calendar units are
// applied first, month arithmetic clamps to the end of the target month, and
// clock units are exact.
func shift(t time.Time, values map[string]float64, sign int) (time.Time, error) {
	var months, days int
	var exact time.Duration
	for key, v := range values {
		switch normalizeUnit(key) {
		case "year", "quarter", "month":
			n, err := wholeNumber(key, v)
			if err != nil {
				return time.Time{}, err
			}
			switch normalizeUnit(key) {
			case "year":
				months += 12 * n
			case "quarter":
				months += 3 * n
			default:
				months += n
			}
		case "week", "day":
			n, err := wholeNumber(key, v)
			if err != nil {
				return time.Time{}, err
			}
			if normalizeUnit(key) == "week" {
				n *= 7
			}
			days += n
		case "hour":
			exact += time.Duration(v * float64(time.Hour))
		case "minute":
			exact += time.Duration(v * float64(time.Minute))
		case "second":
			exact += time.Duration(v * float64(time.Second))
		case "millisecond":
			exact += time.Duration(v * float64(time.Millisecond))
		default:
			return time.Time{}, fmt.Errorf("unknown duration unit %q", key)
		}
	}

	t = addMonthsClamped(t, sign*months)
	t = t.AddDate(0, 0, sign*days)
	return t.Add(time.Duration(sign) * exact), nil
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func addMonthsClamped(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	y, m, d := t.Date()
	total := int(m) - 1 + months
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	nm := time.Month(total + 1)
	if last := daysIn(y, nm, t.Location()); d > last {
		d = last
	}
	return time.Date(y, nm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// setFields overrides individual calendar and clock fields.
func setFields(t time.Time, values map[string]float64) (time.Time, error) {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	ms := t.Nanosecond() / int(time.Millisecond)

	fields := map[string]*int{
		"year": &y, "day": &d, "hour": &hh, "minute": &mm, "second": &ss, "millisecond": &ms,
	}
	month := int(m)
	fields["month"] = &month

	daySet := false
	for key, v := range values {
		unit := normalizeUnit(key)
		target, ok := fields[unit]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown field %q", key)
		}
		if unit == "day" {
			daySet = true
		}
		n, err := wholeNumber(key, v)
		if err != nil {
			return time.Time{}, err
		}
		*target = n
	}

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", month)
	}
	last := daysIn(y, time.Month(month), t.Location())
	if !daySet && d > last {
		d = last
	}
	switch {
	case d < 1 || d > last:
		return time.Time{}, fmt.Errorf("day %d out of range", d)
	case hh < 0 || hh > 23:
		return time.Time{}, fmt.Errorf("hour %d out of range", hh)
	case mm < 0 || mm > 59:
		return time.Time{}, fmt.Errorf("minute %d out of range", mm)
	case ss < 0 || ss > 59:
		return time.Time{}, fmt.Errorf("second %d out of range", ss)
	case ms < 0 || ms > 999:
		return time.Time{}, fmt.Errorf("millisecond %d out of range", ms)
	}
	return time.Date(y, time.Month(month), d, hh, mm, ss, ms*int(time.Millisecond), t.Location()), nil
}
