package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Accepted input layouts for ParseDate, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
}

// NewDate creates a new Date from year, month, day in UTC.
// Out-of-range values normalize the way time.Date does.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date. The date is read in the
// instant's own location and then pinned to UTC midnight.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current calendar date in UTC.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses YYYY-MM-DD, RFC3339 timestamps and DD/MM/YYYY.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == time.RFC3339 {
				t = t.UTC()
			}
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampedDate builds (year, month, day) with day clamped to the last day of
// that month, so day 31 in April yields April 30.
func ClampedDate(year, month, day int) Date {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

// AddMonthsClamped moves the date n calendar months, keeping the day of month
// unless the target month is shorter, in which case it lands on its last day.
func (d Date) AddMonthsClamped(n int) Date {
	total := d.Year()*12 + (d.Month() - 1) + n
	year, month := total/12, total%12+1
	return ClampedDate(year, month, d.Day())
}

// AddYearsClamped moves the date n years; Feb 29 becomes Feb 28 in common years.
func (d Date) AddYearsClamped(n int) Date {
	return ClampedDate(d.Year()+n, d.Month(), d.Day())
}

// DaysUntil returns the whole number of days from d to other (negative if
// other is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is a later calendar day than o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Equal reports whether d and o are the same calendar day.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// String formats as YYYY-MM-DD; the zero date prints as an empty string.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts any layout ParseDate accepts; empty input is the zero date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" string instead of the
// timestamp time.Time would produce.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a JSON string with UnmarshalText.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	return d.UnmarshalText([]byte(s))
}
