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
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/stockparfait/errors"
)

// Params are parameters for pretty-printing or CSV export of Table data.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the header, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

func (t *Table) stringRow(row Row) []string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = FormatValue(v)
	}
	return cells
}

// WriteCSV writes the entire table to w in CSV format.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	if !p.NoHeader && len(t.columns) > 0 {
		if err := cw.Write(t.columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
	}
	it := t.Rows()
	for i := 0; ; i++ {
		row, ok := it.Next()
		if !ok || (p.Rows > 0 && i >= p.Rows) {
			break
		}
		if err := cw.Write(t.stringRow(row)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush written rows")
	}
	return nil
}

// WriteText writes the table as a text formatted for ease of reading.
func (t *Table) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	widths := make([]int, len(t.columns))
	update := func(row []string) {
		for i := range widths {
			if widths[i] < len(row[i]) {
				widths[i] = len(row[i])
				if p.MaxColWidth > 0 && widths[i] > p.MaxColWidth {
					widths[i] = p.MaxColWidth
				}
			}
		}
	}

	write := func(row []string) error {
		trimmed := make([]string, len(row))
		for i, s := range row {
			trimmed[i] = s
			if len([]rune(s)) > widths[i] {
				r := []rune(s)[:widths[i]-2]
				trimmed[i] = string(r) + ".."
			}
			trimmed[i] = fmt.Sprintf("%[2]*[1]s", trimmed[i], widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(trimmed, " | "))
		return err
	}

	dashedRow := func() []string {
		row := make([]string, len(widths))
		for i, width := range widths {
			row[i] = strings.Repeat("-", width)
		}
		return row
	}

	if !p.NoHeader {
		update(t.columns)
	}
	it := t.Rows()
	for i := 0; ; i++ {
		row, ok := it.Next()
		if !ok || (p.Rows > 0 && i >= p.Rows) {
			break
		}
		update(t.stringRow(row))
	}

	if !p.NoHeader && len(t.columns) > 0 {
		if err := write(t.columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
		if err := write(dashedRow()); err != nil {
			return errors.Annotate(err, "failed to write header separator")
		}
	}
	it = t.Rows()
	for i := 0; ; i++ {
		row, ok := it.Next()
		if !ok || (p.Rows > 0 && i >= p.Rows) {
			break
		}
		if err := write(t.stringRow(row)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	return nil
}
