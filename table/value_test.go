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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func coerce(jsonValue, columnType string) (Value, error) {
	return coerceValue(json.RawMessage(jsonValue), "col", ColumnMeta{Type: columnType})
}

func TestValue(t *testing.T) {
	t.Parallel()

	Convey("coerceValue works", t, func() {
		Convey("null passes through for any type", func() {
			for _, tp := range []string{TypeString, TypeInt32, TypeInt64,
				TypeDouble, TypeDate, TypeTime, TypeDateTime} {
				v, err := coerce("null", tp)
				So(err, ShouldBeNil)
				So(v, ShouldBeNil)
			}
		})

		Convey("string", func() {
			v, err := coerce(`"GAZP"`, TypeString)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "GAZP")

			_, err = coerce("42", TypeString)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "does not allow value 42")
		})

		Convey("int32 and int64", func() {
			v, err := coerce("42", TypeInt32)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int32(42))

			v, err = coerce("9000000000", TypeInt64)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(9000000000))

			_, err = coerce("4.5", TypeInt32)
			So(err, ShouldNotBeNil)
			_, err = coerce(`"42"`, TypeInt64)
			So(err, ShouldNotBeNil)
		})

		Convey("double widens integers", func() {
			v, err := coerce("2.5", TypeDouble)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2.5)

			v, err = coerce("42", TypeDouble)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 42.0)
		})

		Convey("date", func() {
			v, err := coerce(`"2024-06-15"`, TypeDate)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, NewDate(2024, 6, 15))

			Convey("the all-zeros date is null", func() {
				v, err = coerce(`"0000-00-00"`, TypeDate)
				So(err, ShouldBeNil)
				So(v, ShouldBeNil)
			})

			_, err = coerce(`"June 15"`, TypeDate)
			So(err, ShouldNotBeNil)
		})

		Convey("time", func() {
			v, err := coerce(`"18:45:00"`, TypeTime)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, NewTimeOfDay(18, 45, 0))
		})

		Convey("datetime accepts space and T separators", func() {
			expected := NewTime(2024, 6, 15, 18, 45, 0)
			v, err := coerce(`"2024-06-15 18:45:00"`, TypeDateTime)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, expected)

			v, err = coerce(`"2024-06-15T18:45:00"`, TypeDateTime)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, expected)
		})

		Convey("unknown column type", func() {
			_, err := coerce("42", "uint128")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unknown type 'uint128'")
		})
	})

	Convey("Compare works", t, func() {
		Convey("same kind", func() {
			c, err := Compare("abc", "abd")
			So(err, ShouldBeNil)
			So(c, ShouldEqual, -1)

			c, err = Compare(NewDate(2024, 6, 15), NewDate(2024, 6, 15))
			So(err, ShouldBeNil)
			So(c, ShouldEqual, 0)

			c, err = Compare(NewTimeOfDay(18, 0, 0), NewTimeOfDay(9, 30, 0))
			So(err, ShouldBeNil)
			So(c, ShouldEqual, 1)

			c, err = Compare(NewTime(2024, 6, 15, 0, 0, 0), NewTime(2024, 6, 16, 0, 0, 0))
			So(err, ShouldBeNil)
			So(c, ShouldEqual, -1)
		})

		Convey("numeric kinds cross-compare", func() {
			c, err := Compare(int32(2), 2.5)
			So(err, ShouldBeNil)
			So(c, ShouldEqual, -1)

			c, err = Compare(int64(42), int32(42))
			So(err, ShouldBeNil)
			So(c, ShouldEqual, 0)
		})

		Convey("kind mismatch and nulls are errors", func() {
			_, err := Compare("42", int32(42))
			So(err, ShouldNotBeNil)

			_, err = Compare(NewDate(2024, 1, 1), NewTime(2024, 1, 1, 0, 0, 0))
			So(err, ShouldNotBeNil)

			_, err = Compare(nil, "abc")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "null")
		})
	})

	Convey("Date methods work", t, func() {
		d := NewDate(2024, 2, 28)
		So(d.String(), ShouldEqual, "2024-02-28")
		So(d.AddDays(2), ShouldResemble, NewDate(2024, 3, 1)) // leap year
		So(d.Before(NewDate(2024, 3, 1)), ShouldBeTrue)
		So(d.After(NewDate(2024, 3, 1)), ShouldBeFalse)
		So(d.IsZero(), ShouldBeFalse)
		So(Date{}.IsZero(), ShouldBeTrue)

		js, err := json.Marshal(d)
		So(err, ShouldBeNil)
		So(string(js), ShouldEqual, `"2024-02-28"`)

		var d2 Date
		So(json.Unmarshal(js, &d2), ShouldBeNil)
		So(d2, ShouldResemble, d)
	})

	Convey("FormatValue works", t, func() {
		So(FormatValue(nil), ShouldEqual, "")
		So(FormatValue("GAZP"), ShouldEqual, "GAZP")
		So(FormatValue(int32(42)), ShouldEqual, "42")
		So(FormatValue(2.5), ShouldEqual, "2.5")
		So(FormatValue(NewDate(2024, 6, 15)), ShouldEqual, "2024-06-15")
		So(FormatValue(NewTimeOfDay(18, 45, 0)), ShouldEqual, "18:45:00")
	})
}
