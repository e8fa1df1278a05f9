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

var testMeta = map[string]ColumnMeta{
	"SECID":     {Type: TypeString, MaxSize: 36},
	"TRADEDATE": {Type: TypeDate, Bytes: 10},
	"CLOSE":     {Type: TypeDouble},
}

var testColumns = []string{"SECID", "TRADEDATE", "CLOSE"}

// testRaw builds a Raw block from plain Go values, going through JSON the
// same way a real response would.
func testRaw(meta map[string]ColumnMeta, columns []string, data [][]interface{}) Raw {
	b, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	var cells [][]json.RawMessage
	if err := json.Unmarshal(b, &cells); err != nil {
		panic(err)
	}
	return Raw{Metadata: meta, Columns: columns, Data: cells}
}

func testRow(secid string, date string, close float64) Row {
	d, err := NewDateFromString(date)
	if err != nil {
		panic(err)
	}
	return Row{secid, d, close}
}

func rowsAll(t *Table) []Row {
	var rows []Row
	it := t.Rows()
	for {
		row, ok := it.Next()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	Convey("FromRaw works", t, func() {
		Convey("coerces cells per column metadata", func() {
			tbl, err := FromRaw(testRaw(testMeta, testColumns, [][]interface{}{
				{"GAZP", "2024-06-14", 120.5},
				{"GAZP", "2024-06-15", nil},
			}))
			So(err, ShouldBeNil)
			So(tbl.Columns(), ShouldResemble, testColumns)
			So(tbl.RowCount(), ShouldEqual, 2)
			So(rowsAll(tbl), ShouldResemble, []Row{
				testRow("GAZP", "2024-06-14", 120.5),
				{"GAZP", NewDate(2024, 6, 15), nil},
			})
		})

		Convey("zero rows is a valid table", func() {
			tbl, err := FromRaw(testRaw(testMeta, testColumns, [][]interface{}{}))
			So(err, ShouldBeNil)
			So(tbl.RowCount(), ShouldEqual, 0)
			So(rowsAll(tbl), ShouldBeNil)
		})

		Convey("missing blocks are errors", func() {
			_, err := FromRaw(Raw{Columns: testColumns, Data: [][]json.RawMessage{}})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no metadata")

			_, err = FromRaw(Raw{Metadata: testMeta, Data: [][]json.RawMessage{}})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no columns")

			_, err = FromRaw(Raw{Metadata: testMeta, Columns: testColumns})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no data")
		})

		Convey("column without metadata is an error", func() {
			_, err := FromRaw(testRaw(testMeta, []string{"SECID", "BOGUS"},
				[][]interface{}{}))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no metadata for column 'BOGUS'")
		})

		Convey("short row is an error", func() {
			_, err := FromRaw(testRaw(testMeta, testColumns, [][]interface{}{
				{"GAZP", "2024-06-14"},
			}))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "row 0 has 2 values, expected 3")
		})
	})

	Convey("Access methods work", t, func() {
		tbl, err := FromRaw(testRaw(testMeta, testColumns, [][]interface{}{
			{"GAZP", "2024-06-14", 120.5},
			{"SBER", "2024-06-15", 310.0},
		}))
		So(err, ShouldBeNil)

		Convey("columns", func() {
			So(tbl.HasColumn("CLOSE"), ShouldBeTrue)
			So(tbl.HasColumn("BOGUS"), ShouldBeFalse)

			pos, err := tbl.ColumnPosition("TRADEDATE")
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, 1)

			_, err = tbl.ColumnPosition("BOGUS")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "doesn't have column 'BOGUS'")

			m, err := tbl.ColumnMetadata("SECID")
			So(err, ShouldBeNil)
			So(m, ShouldResemble, ColumnMeta{Type: TypeString, MaxSize: 36})
		})

		Convey("rows and values", func() {
			row, err := tbl.Row(1)
			So(err, ShouldBeNil)
			So(row, ShouldResemble, testRow("SBER", "2024-06-15", 310.0))

			v, err := tbl.Value(0, "CLOSE")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 120.5)

			_, err = tbl.Row(2)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "out of range (0..1)")

			_, err = tbl.Row(-1)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Partitioned methods work", t, func() {
		p1 := []Row{testRow("GAZP", "2024-06-10", 118.0)}
		p2 := []Row{
			testRow("GAZP", "2024-06-11", 119.0),
			testRow("GAZP", "2024-06-13", 121.0),
		}
		p3 := []Row{testRow("GAZP", "2024-06-14", 120.5)}

		Convey("Extend keeps positional order across partitions", func() {
			tbl := New(testMeta, testColumns, p1)
			tbl.Extend(New(testMeta, testColumns, p2))
			tbl.Extend(New(testMeta, testColumns, []Row{}, p3))

			So(tbl.RowCount(), ShouldEqual, 4)
			So(rowsAll(tbl), ShouldResemble, []Row{p1[0], p2[0], p2[1], p3[0]})
			row, err := tbl.Row(3)
			So(err, ShouldBeNil)
			So(row, ShouldResemble, p3[0])
			row, err = tbl.Row(1)
			So(err, ShouldBeNil)
			So(row, ShouldResemble, p2[0])
		})

		Convey("Concat is non-destructive and associative", func() {
			t1 := New(testMeta, testColumns, p1)
			t2 := New(testMeta, testColumns, p2)
			t3 := New(testMeta, testColumns, p3)

			left := t1.Concat(t2).Concat(t3)
			right := t1.Concat(t2.Concat(t3))
			So(rowsAll(left), ShouldResemble, rowsAll(right))
			So(t1.RowCount(), ShouldEqual, 1)
			So(t2.RowCount(), ShouldEqual, 2)
		})

		Convey("Take slices the boundary partition", func() {
			tbl := New(testMeta, testColumns, p1, p2, p3)

			t2, err := tbl.Take(2)
			So(err, ShouldBeNil)
			So(t2.RowCount(), ShouldEqual, 2)
			So(rowsAll(t2), ShouldResemble, []Row{p1[0], p2[0]})

			t0, err := tbl.Take(0)
			So(err, ShouldBeNil)
			So(t0.RowCount(), ShouldEqual, 0)
			So(t0.Columns(), ShouldResemble, testColumns)

			Convey("n >= RowCount returns the receiver", func() {
				tAll, err := tbl.Take(100)
				So(err, ShouldBeNil)
				So(tAll == tbl, ShouldBeTrue)
			})

			Convey("negative n is an error", func() {
				_, err := tbl.Take(-1)
				So(err, ShouldNotBeNil)
			})
		})

		Convey("Flatten is idempotent and preserves order", func() {
			tbl := New(testMeta, testColumns, p1, p2, p3)
			expected := rowsAll(tbl)

			tbl.Flatten()
			So(tbl.RowCount(), ShouldEqual, 4)
			So(rowsAll(tbl), ShouldResemble, expected)

			tbl.Flatten()
			So(rowsAll(tbl), ShouldResemble, expected)
		})
	})

	Convey("JSON state round-trips", t, func() {
		tbl := New(testMeta, testColumns,
			[]Row{testRow("GAZP", "2024-06-14", 120.5)},
			[]Row{{"GAZP", NewDate(2024, 6, 15), nil}},
		)
		js, err := json.Marshal(tbl)
		So(err, ShouldBeNil)

		var tbl2 Table
		So(json.Unmarshal(js, &tbl2), ShouldBeNil)
		So(tbl2.Columns(), ShouldResemble, tbl.Columns())
		So(rowsAll(&tbl2), ShouldResemble, rowsAll(tbl))

		m, err := tbl2.ColumnMetadata("TRADEDATE")
		So(err, ShouldBeNil)
		So(m.Type, ShouldEqual, TypeDate)
	})
}
