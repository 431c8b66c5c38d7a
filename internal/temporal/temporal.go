// Package temporal normalizes the flexible date and time input accepted by
// the scheduling engine into canonical calendar-day and clock-time values.
package temporal

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrInvalidTemporalInput is returned when no interpretation of a date or
// time string succeeds. Callers must abort before any write.
var ErrInvalidTemporalInput = errors.New("invalid temporal input")

const secondsPerDay = 24 * 60 * 60

// Date is a calendar day with no clock or zone component.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day.
func Today() Date {
	return DateOf(time.Now())
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts an ISO date, an ISO datetime (with or without a trailing
// Z), or any unambiguous free-form date string.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty date", ErrInvalidTemporalInput)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a recognizable date", ErrInvalidTemporalInput, s)
	}
	return DateOf(t), nil
}

// IsZero reports whether the Date is the zero value.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Equal reports whether two Dates name the same calendar day.
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// AddDays returns the Date n days after d.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// At combines the Date with a clock time into a UTC instant.
func (d Date) At(tod TimeOfDay) time.Time {
	return d.t.Add(time.Duration(tod.secs) * time.Second)
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// Value implements driver.Valuer, storing the date as YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) { return d.String(), nil }

// Scan implements sql.Scanner for TEXT and TIMESTAMP columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// MarshalJSON renders the date as its YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts any string ParseDate accepts.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a clock time with second resolution, independent of any date.
type TimeOfDay struct {
	secs int
}

// NewTimeOfDay constructs a TimeOfDay from hour, minute, and second.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay{secs: hour*3600 + minute*60 + second}
}

var timeLayouts = []string{
	"15:04",
	"15:04:05",
}

// ParseTimeOfDay accepts HH:MM, HH:MM:SS, or any parseable datetime string
// whose clock portion is taken.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, fmt.Errorf("%w: empty time", ErrInvalidTemporalInput)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q is not a recognizable time", ErrInvalidTemporalInput, s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}

// Before reports whether t is numerically earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool { return t.secs < o.secs }

// Seconds returns the clock time as seconds since midnight.
func (t TimeOfDay) Seconds() int { return t.secs }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.secs/3600, t.secs/60%60, t.secs%60)
}

// HHMM renders the time without seconds, the form shown to users.
func (t TimeOfDay) HHMM() string {
	return fmt.Sprintf("%02d:%02d", t.secs/3600, t.secs/60%60)
}

// Value implements driver.Valuer, storing the time as HH:MM:SS text.
func (t TimeOfDay) Value() (driver.Value, error) { return t.String(), nil }

// Scan implements sql.Scanner for TEXT columns.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = NewTimeOfDay(v.Hour(), v.Minute(), v.Second())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// MarshalJSON renders the time as its HH:MM:SS string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts any string ParseTimeOfDay accepts.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DeriveEnd adds a fractional-hour duration to a start time. rollover is true
// when the window crosses midnight; the true end instant then falls on the
// day after the start's date.
func DeriveEnd(start TimeOfDay, durationHours float64) (end TimeOfDay, rollover bool) {
	total := start.secs + int(math.Round(durationHours*3600))
	end = TimeOfDay{secs: ((total % secondsPerDay) + secondsPerDay) % secondsPerDay}
	rollover = total >= secondsPerDay
	return end, rollover
}

// Overlaps applies the half-open interval test [aStart, aEnd) against
// [bStart, bEnd). Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart.secs < bEnd.secs && aEnd.secs > bStart.secs
}
