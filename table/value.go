// Copyright 2024 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package table

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockparfait/errors"
)

// Value is a single table cell. A non-nil Value holds exactly one of: string,
// int32, int64, float64, Date, TimeOfDay or Time, as determined by the
// column's metadata at coercion time. A nil Value represents a null cell,
// which is valid for any column.
type Value interface{}

// nullDate is how the ISS API represents an unset date value.
const nullDate = "0000-00-00"

// Column type tags used in the ISS metadata block.
const (
	TypeString   = "string"
	TypeInt32    = "int32"
	TypeInt64    = "int64"
	TypeDouble   = "double"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeDateTime = "datetime"
)

func parseDateTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05.999",
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05.999Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	var err error
	for _, f := range formats {
		var tm time.Time
		tm, err = time.Parse(f, s)
		if err == nil {
			return tm, nil
		}
	}
	return time.Time{}, err
}

// Date records a calendar date as year, month and day. The struct is designed
// to fit into 4 bytes, and its fields are exported to work with encoding/gob.
type Date struct {
	YearVal  uint16
	MonthVal uint8
	DayVal   uint8
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = &Date{}

// NewDate is the constructor for Date.
func NewDate(year uint16, month, day uint8) Date {
	return Date{year, month, day}
}

// NewDateFromTime creates a Date instance from a time.Time value in UTC.
func NewDateFromTime(t time.Time) Date {
	return Date{
		YearVal:  uint16(t.Year()),
		MonthVal: uint8(t.Month()),
		DayVal:   uint8(t.Day()),
	}
}

// NewDateFromString creates a Date instance from its ISS string form,
// "YYYY-MM-DD".
func NewDateFromString(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, errors.Annotate(err, "failed to parse a Date string: '%s'", s)
	}
	return NewDateFromTime(t), nil
}

func (d Date) Year() uint16 { return d.YearVal }
func (d Date) Month() uint8 { return d.MonthVal }
func (d Date) Day() uint8   { return d.DayVal }

// String representation of the value.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), d.Month(), d.Day())
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. NOTE: unlike other methods, this
// is a pointer method.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Annotate(err, "Date JSON must be a string")
	}
	date, err := NewDateFromString(s)
	if err != nil {
		return errors.Annotate(err, "failed to parse Date string")
	}
	*d = date
	return nil
}

// ToTime converts Date to time.Time in UTC.
func (d Date) ToTime() time.Time {
	return time.Date(int(d.Year()), time.Month(d.Month()), int(d.Day()),
		0, 0, 0, 0, time.UTC)
}

// AddDays returns a new Date shifted by n calendar days (n may be negative).
func (d Date) AddDays(n int) Date {
	return NewDateFromTime(d.ToTime().AddDate(0, 0, n))
}

// Before compares two Date objects for strict inequality (self < d2).
func (d Date) Before(d2 Date) bool {
	if d.Year() != d2.Year() {
		return d.Year() < d2.Year()
	}
	if d.Month() != d2.Month() {
		return d.Month() < d2.Month()
	}
	return d.Day() < d2.Day()
}

// After compares two Date objects for strict inequality, self > d2.
func (d Date) After(d2 Date) bool {
	return d2.Before(d)
}

// IsZero checks whether the date has a zero value.
func (d Date) IsZero() bool {
	return d.Year() == 0 && d.Month() == 0 && d.Day() == 0
}

// TimeOfDay records a wall-clock time with second precision, without an
// associated date or time zone.
type TimeOfDay struct {
	HourVal   uint8
	MinuteVal uint8
	SecondVal uint8
}

var _ json.Marshaler = TimeOfDay{}

// NewTimeOfDay is the constructor for TimeOfDay.
func NewTimeOfDay(hour, minute, second uint8) TimeOfDay {
	return TimeOfDay{hour, minute, second}
}

// NewTimeOfDayFromString creates a TimeOfDay from its ISS string form,
// "HH:MM:SS".
func NewTimeOfDayFromString(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return TimeOfDay{}, errors.Annotate(
			err, "failed to parse a TimeOfDay string: '%s'", s)
	}
	return TimeOfDay{uint8(t.Hour()), uint8(t.Minute()), uint8(t.Second())}, nil
}

func (t TimeOfDay) Hour() uint8   { return t.HourVal }
func (t TimeOfDay) Minute() uint8 { return t.MinuteVal }
func (t TimeOfDay) Second() uint8 { return t.SecondVal }

// String representation of the value.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// MarshalJSON implements json.Marshaler.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Before compares two TimeOfDay objects for strict inequality (self < t2).
func (t TimeOfDay) Before(t2 TimeOfDay) bool {
	if t.Hour() != t2.Hour() {
		return t.Hour() < t2.Hour()
	}
	if t.Minute() != t2.Minute() {
		return t.Minute() < t2.Minute()
	}
	return t.Second() < t2.Second()
}

// Time is a wrapper around time.Time representing a datetime cell value.
type Time time.Time

var _ json.Marshaler = Time{}

// NewTime is the constructor for Time, in UTC.
func NewTime(year, month, day, hour, minute, second int) Time {
	return Time(time.Date(
		year, time.Month(month), day, hour, minute, second, 0, time.UTC))
}

// NewTimeFromString creates a Time from its ISS string form, an ISO-8601-like
// datetime with either a space or a 'T' separator.
func NewTimeFromString(s string) (Time, error) {
	tm, err := parseDateTime(s)
	if err != nil {
		return Time{}, errors.Annotate(err, "failed to parse a Time string: '%s'", s)
	}
	return Time(tm), nil
}

// String representation of the value.
func (t Time) String() string {
	return time.Time(t).Format("2006-01-02 15:04:05")
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Before compares two Time objects for strict inequality (self < t2).
func (t Time) Before(t2 Time) bool {
	return time.Time(t).Before(time.Time(t2))
}

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func sign(x float64) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

// Compare orders two non-null values of the same kind: -1 if a < b, 0 if
// a == b, 1 if a > b. The numeric kinds (int32, int64, double) compare with
// each other; any other kind mismatch, a null, or a value outside the closed
// value set is an error.
func Compare(a, b Value) (int, error) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case int32, int64, float64:
		af, _ := toFloat(a)
		if bf, ok := toFloat(b); ok {
			return sign(af - bf), nil
		}
	case Date:
		if bv, ok := b.(Date); ok {
			if av.Before(bv) {
				return -1, nil
			}
			if av.After(bv) {
				return 1, nil
			}
			return 0, nil
		}
	case TimeOfDay:
		if bv, ok := b.(TimeOfDay); ok {
			if av.Before(bv) {
				return -1, nil
			}
			if bv.Before(av) {
				return 1, nil
			}
			return 0, nil
		}
	case Time:
		if bv, ok := b.(Time); ok {
			if av.Before(bv) {
				return -1, nil
			}
			if bv.Before(av) {
				return 1, nil
			}
			return 0, nil
		}
	case nil:
		return 0, errors.Reason("cannot compare null values")
	default:
		return 0, errors.Reason("unsupported value type %T", a)
	}
	return 0, errors.Reason("cannot compare values of types %T and %T", a, b)
}

// FormatValue renders a cell value for text or CSV output. A null cell
// renders as an empty string.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Date:
		return x.String()
	case TimeOfDay:
		return x.String()
	case Time:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// coerceValue converts a raw JSON cell value to its native kind according to
// the column's declared type. JSON null passes through as a nil Value for any
// column type. The literal "0000-00-00" in a date column is a known ISS
// artifact for an unset date, and coerces to null.
func coerceValue(raw json.RawMessage, column string, meta ColumnMeta) (Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	badValue := func() error {
		return errors.Reason("column '%s' of type '%s' does not allow value %s",
			column, meta.Type, string(raw))
	}
	switch meta.Type {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, badValue()
		}
		return s, nil
	case TypeInt32:
		var n int32
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, badValue()
		}
		return n, nil
	case TypeInt64:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, badValue()
		}
		return n, nil
	case TypeDouble:
		// JSON integers widen to float64 exactly.
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, badValue()
		}
		return f, nil
	case TypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, badValue()
		}
		if s == nullDate {
			return nil, nil
		}
		d, err := NewDateFromString(s)
		if err != nil {
			return nil, badValue()
		}
		return d, nil
	case TypeTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, badValue()
		}
		t, err := NewTimeOfDayFromString(s)
		if err != nil {
			return nil, badValue()
		}
		return t, nil
	case TypeDateTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, badValue()
		}
		t, err := NewTimeFromString(s)
		if err != nil {
			return nil, badValue()
		}
		return t, nil
	}
	return nil, errors.Reason("column '%s' has unknown type '%s'",
		column, meta.Type)
}
