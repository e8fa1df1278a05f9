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

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
)

// IndexedTable is a key-based view over a Table with a sorted index column.
//
// It provides exact key lookup and range queries via binary search on the
// index column, whose non-null values are assumed to be sorted in
// non-decreasing order across the table. The underlying Table remains
// available for positional access; the view never modifies it.
//
// A typical use:
//
//	tbl, err := req.Fetch(ctx)
//	indexed, err := table.NewIndexed(tbl, "TRADEDATE")
//	row, ok, err := indexed.Row(table.NewDate(2024, 6, 15))
type IndexedTable struct {
	table  *Table
	column string
	colPos int
}

// NewIndexed creates an indexed view of the table over the given index
// column.
func NewIndexed(t *Table, indexColumn string) (*IndexedTable, error) {
	pos, ok := t.colPos[indexColumn]
	if !ok {
		return nil, errors.Reason("table doesn't have index column '%s'", indexColumn)
	}
	return &IndexedTable{table: t, column: indexColumn, colPos: pos}, nil
}

// Table returns the underlying table for positional access.
func (x *IndexedTable) Table() *Table {
	return x.table
}

// IndexColumn returns the name of the index column.
func (x *IndexedTable) IndexColumn() string {
	return x.column
}

// Columns returns the list of column names.
func (x *IndexedTable) Columns() []string {
	return x.table.Columns()
}

// RowCount returns the total number of rows.
func (x *IndexedTable) RowCount() int {
	return x.table.RowCount()
}

// indexValue returns the index column value at the given row position. A
// null value is an error: binary search cannot order it.
func (x *IndexedTable) indexValue(position int) (Value, error) {
	row, err := x.table.Row(position)
	if err != nil {
		return nil, err
	}
	v := row[x.colPos]
	if v == nil {
		return nil, errors.Reason(
			"index column contains null value at row %d, cannot perform binary search",
			position)
	}
	return v, nil
}

// bisectLeft is the lower-bound binary search over the index column.
//
// With exactMatch, the second result reports whether a row with the exact
// key value was found. Without it, the search returns the first position
// whose value is >= key, and the second result is false only when the key is
// past the last row.
func (x *IndexedTable) bisectLeft(key Value, exactMatch bool) (int, bool, error) {
	count := x.table.RowCount()
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		v, err := x.indexValue(mid)
		if err != nil {
			return 0, false, err
		}
		c, err := Compare(v, key)
		if err != nil {
			return 0, false, err
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == count {
		return 0, false, nil
	}
	if exactMatch {
		v, err := x.indexValue(lo)
		if err != nil {
			return 0, false, err
		}
		c, err := Compare(v, key)
		if err != nil {
			return 0, false, err
		}
		return lo, c == 0, nil
	}
	return lo, true, nil
}

// bisectRight is the upper-bound binary search: the position after the last
// row whose index value is <= key.
func (x *IndexedTable) bisectRight(key Value) (int, error) {
	lo, hi := 0, x.table.RowCount()
	for lo < hi {
		mid := (lo + hi) / 2
		v, err := x.indexValue(mid)
		if err != nil {
			return 0, err
		}
		c, err := Compare(v, key)
		if err != nil {
			return 0, err
		}
		if c <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Row returns the first row whose index value equals key, if any.
func (x *IndexedTable) Row(key Value) (Row, bool, error) {
	pos, found, err := x.bisectLeft(key, true)
	if err != nil || !found {
		return nil, false, err
	}
	row, err := x.table.Row(pos)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Value returns the value in the given column of the row whose index value
// equals key, if any.
func (x *IndexedTable) Value(key Value, column string) (Value, bool, error) {
	row, found, err := x.Row(key)
	if err != nil || !found {
		return nil, false, err
	}
	pos, err := x.table.ColumnPosition(column)
	if err != nil {
		return nil, false, err
	}
	return row[pos], true, nil
}

// indexedState is the serializable state of an IndexedTable: the underlying
// table state plus the index column name.
type indexedState struct {
	Table       *Table `json:"table"`
	IndexColumn string `json:"index_column"`
}

// MarshalJSON implements json.Marshaler.
func (x *IndexedTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(indexedState{Table: x.table, IndexColumn: x.column})
}

// UnmarshalJSON implements json.Unmarshaler.
func (x *IndexedTable) UnmarshalJSON(data []byte) error {
	var state indexedState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Annotate(err, "failed to decode indexed table state")
	}
	if state.Table == nil {
		return errors.Reason("indexed table state has no table")
	}
	x2, err := NewIndexed(state.Table, state.IndexColumn)
	if err != nil {
		return errors.Annotate(err, "failed to restore indexed table state")
	}
	*x = *x2
	return nil
}

// rangeIterator iterates over the rows in [pos, end).
type rangeIterator struct {
	table *Table
	pos   int
	end   int
}

var _ iterator.Iterator[Row] = &rangeIterator{}

func (it *rangeIterator) Next() (Row, bool) {
	if it.pos >= it.end {
		return nil, false
	}
	row, err := it.table.Row(it.pos)
	if err != nil {
		return nil, false
	}
	it.pos++
	return row, true
}

// Rows returns an iterator over all rows in order.
func (x *IndexedTable) Rows() iterator.Iterator[Row] {
	return x.table.Rows()
}

// RangeRows returns an iterator over the rows whose index value is within
// the given key range. A nil from starts at the first row; a nil to ends at
// the last row. The upper bound is inclusive when inclusiveTo is set, and
// exclusive otherwise. Each call creates a fresh iterator.
func (x *IndexedTable) RangeRows(from, to Value, inclusiveTo bool) (iterator.Iterator[Row], error) {
	count := x.table.RowCount()
	if count == 0 {
		return &rangeIterator{table: x.table}, nil
	}
	start := 0
	if from != nil {
		pos, ok, err := x.bisectLeft(from, false)
		if err != nil {
			return nil, err
		}
		if !ok { // from is past the last row
			return &rangeIterator{table: x.table}, nil
		}
		start = pos
	}
	end := count
	if to != nil {
		if inclusiveTo {
			pos, err := x.bisectRight(to)
			if err != nil {
				return nil, err
			}
			end = pos
		} else {
			pos, ok, err := x.bisectLeft(to, false)
			if err != nil {
				return nil, err
			}
			if ok {
				end = pos
			}
		}
	}
	return &rangeIterator{table: x.table, pos: start, end: end}, nil
}
