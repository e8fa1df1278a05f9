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

// Package table implements the columnar table of MOEX ISS API results.
//
// A Table stores rows in partitions, one per ingested page, so that merging
// many pages never re-copies previously accumulated rows. Cell values are
// coerced to native Go types (Date, TimeOfDay, Time, int32, etc.) according
// to the column metadata when the table is constructed from a raw result
// block. IndexedTable adds binary-search lookups over a sorted column.
package table

import (
	"encoding/json"
	"sort"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
)

// ColumnMeta is the column type and size information from the ISS metadata
// block. Only Type affects value coercion; the size hints are informational.
type ColumnMeta struct {
	Type    string `json:"type"`
	Bytes   int    `json:"bytes,omitempty"`
	MaxSize int    `json:"max_size,omitempty"`
}

// Row is a single table row. Its length always equals the number of columns.
type Row []Value

// Raw is the undecoded wire form of a single table block in an ISS response.
type Raw struct {
	Metadata map[string]ColumnMeta `json:"metadata"`
	Columns  []string              `json:"columns"`
	Data     [][]json.RawMessage   `json:"data"`
}

// Table is a columnar table assembled from one or more result pages.
//
// Rows are stored as a sequence of partitions with a parallel prefix-sum
// offsets index, which makes Extend O(1) in the number of existing rows and
// positional access O(log partitions). A Table is not safe for concurrent
// structural mutation, but any number of goroutines may read it concurrently
// once assembled.
type Table struct {
	meta       map[string]ColumnMeta
	columns    []string
	colPos     map[string]int
	partitions [][]Row
	offsets    []int // cumulative row count preceding each partition
	rows       int   // cached total row count
}

// New creates a Table from already-coerced partitions. The metadata is
// expected to cover every column, and every row of every partition is
// expected to have exactly len(columns) values.
func New(meta map[string]ColumnMeta, columns []string, partitions ...[]Row) *Table {
	if meta == nil {
		meta = map[string]ColumnMeta{}
	}
	if columns == nil {
		columns = []string{}
	}
	colPos := make(map[string]int, len(columns))
	for i, c := range columns {
		colPos[c] = i
	}
	t := &Table{
		meta:       meta,
		columns:    columns,
		colPos:     colPos,
		partitions: partitions,
	}
	t.rebuildOffsets()
	return t
}

// FromRaw coerces every cell of a raw result block per its column metadata
// and wraps the result as a single-partition table.
func FromRaw(raw Raw) (*Table, error) {
	if raw.Metadata == nil {
		return nil, errors.Reason("result block has no metadata")
	}
	if raw.Columns == nil {
		return nil, errors.Reason("result block has no columns")
	}
	if raw.Data == nil {
		return nil, errors.Reason("result block has no data")
	}
	meta := make([]ColumnMeta, len(raw.Columns))
	for i, c := range raw.Columns {
		m, ok := raw.Metadata[c]
		if !ok {
			return nil, errors.Reason("no metadata for column '%s'", c)
		}
		meta[i] = m
	}
	rows := make([]Row, len(raw.Data))
	for i, rawRow := range raw.Data {
		if len(rawRow) != len(raw.Columns) {
			return nil, errors.Reason("row %d has %d values, expected %d",
				i, len(rawRow), len(raw.Columns))
		}
		row := make(Row, len(rawRow))
		for j, rawValue := range rawRow {
			v, err := coerceValue(rawValue, raw.Columns[j], meta[j])
			if err != nil {
				return nil, errors.Annotate(err, "failed to coerce row %d", i)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return New(raw.Metadata, raw.Columns, rows), nil
}

func (t *Table) rebuildOffsets() {
	t.offsets = make([]int, len(t.partitions))
	total := 0
	for i, p := range t.partitions {
		t.offsets[i] = total
		total += len(p)
	}
	t.rows = total
}

// Columns returns the list of column names. The caller must not modify it.
func (t *Table) Columns() []string {
	return t.columns
}

// HasColumn checks whether the table contains a column with the given name.
func (t *Table) HasColumn(column string) bool {
	_, ok := t.colPos[column]
	return ok
}

// ColumnPosition returns the zero-based index of the column.
func (t *Table) ColumnPosition(column string) (int, error) {
	pos, ok := t.colPos[column]
	if !ok {
		return 0, errors.Reason("table doesn't have column '%s'", column)
	}
	return pos, nil
}

// ColumnMetadata returns the metadata entry for the column.
func (t *Table) ColumnMetadata(column string) (ColumnMeta, error) {
	if _, ok := t.colPos[column]; !ok {
		return ColumnMeta{}, errors.Reason("table doesn't have column '%s'", column)
	}
	return t.meta[column], nil
}

// RowCount returns the total number of rows across all partitions.
func (t *Table) RowCount() int {
	return t.rows
}

// Row returns the row at the given zero-based position. The caller must not
// modify it.
func (t *Table) Row(position int) (Row, error) {
	if position < 0 || position >= t.rows {
		return nil, errors.Reason("row position %d is out of range (0..%d)",
			position, t.rows-1)
	}
	// The last partition whose offset is <= position. Empty partitions at the
	// boundary resolve to the next non-empty one, since equal offsets sort the
	// search past them.
	pi := sort.Search(len(t.offsets), func(i int) bool {
		return t.offsets[i] > position
	}) - 1
	return t.partitions[pi][position-t.offsets[pi]], nil
}

// Value returns the value at the given row position and column name.
func (t *Table) Value(position int, column string) (Value, error) {
	row, err := t.Row(position)
	if err != nil {
		return nil, err
	}
	pos, err := t.ColumnPosition(column)
	if err != nil {
		return nil, err
	}
	return row[pos], nil
}

// rowsIterator iterates over the table rows in partition order.
type rowsIterator struct {
	partitions [][]Row
	part       int
	index      int
}

var _ iterator.Iterator[Row] = &rowsIterator{}

func (it *rowsIterator) Next() (Row, bool) {
	for it.part < len(it.partitions) {
		if it.index < len(it.partitions[it.part]) {
			row := it.partitions[it.part][it.index]
			it.index++
			return row, true
		}
		it.part++
		it.index = 0
	}
	return nil, false
}

// Rows returns an iterator over all rows in order. Each call creates a fresh
// iterator, so the sequence can be consumed any number of times.
func (t *Table) Rows() iterator.Iterator[Row] {
	return &rowsIterator{partitions: t.partitions}
}

// Extend appends all rows of the other table to this table in place. The
// other table's columns and metadata are assumed identical to this table's.
// Partitions are shared, not copied; this is the hot path when merging pages.
func (t *Table) Extend(other *Table) {
	t.partitions = append(t.partitions, other.partitions...)
	t.rebuildOffsets()
}

// Concat returns a new table with the rows of this table followed by the
// rows of the other table, without copying row data.
func (t *Table) Concat(other *Table) *Table {
	partitions := make([][]Row, 0, len(t.partitions)+len(other.partitions))
	partitions = append(partitions, t.partitions...)
	partitions = append(partitions, other.partitions...)
	return New(t.meta, t.columns, partitions...)
}

// Take returns a table containing at most the first n rows, slicing only the
// partition at the truncation boundary. When n >= RowCount() it returns the
// receiver unchanged.
func (t *Table) Take(n int) (*Table, error) {
	if n < 0 {
		return nil, errors.Reason("n must be non-negative, got %d", n)
	}
	if n >= t.rows {
		return t, nil
	}
	remaining := n
	var partitions [][]Row
	for _, p := range t.partitions {
		if remaining <= 0 {
			break
		}
		if len(p) == 0 {
			continue
		}
		if len(p) > remaining {
			partitions = append(partitions, p[:remaining])
			break
		}
		partitions = append(partitions, p)
		remaining -= len(p)
	}
	return New(t.meta, t.columns, partitions...), nil
}

// Flatten coalesces all partitions into one. No-op if the table already has
// at most one partition.
func (t *Table) Flatten() {
	if len(t.partitions) <= 1 {
		return
	}
	flat := make([]Row, 0, t.rows)
	for _, p := range t.partitions {
		flat = append(flat, p...)
	}
	t.partitions = [][]Row{flat}
	t.rebuildOffsets()
}

// tableState is the serializable state of a Table: its metadata, columns and
// flattened row data. It matches the wire format of a single result block.
type tableState struct {
	Metadata map[string]ColumnMeta `json:"metadata"`
	Columns  []string              `json:"columns"`
	Data     []Row                 `json:"data"`
}

// MarshalJSON implements json.Marshaler. It flattens the table in place.
func (t *Table) MarshalJSON() ([]byte, error) {
	t.Flatten()
	data := []Row{}
	if len(t.partitions) > 0 {
		data = t.partitions[0]
	}
	return json.Marshal(tableState{
		Metadata: t.meta,
		Columns:  t.columns,
		Data:     data,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The restored table is a
// single-partition table equivalent to the marshaled one; cell values are
// re-coerced from their string forms using the column metadata.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Annotate(err, "failed to decode table state")
	}
	t2, err := FromRaw(raw)
	if err != nil {
		return errors.Annotate(err, "failed to restore table state")
	}
	*t = *t2
	return nil
}
