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

// Package history implements the typed API for the MOEX ISS trading history
// endpoints, built on top of the generic iss and table packages.
//
// The "history" table block holds one row per security per trading day. This
// package downloads it with date pagination, converts the rows to Record
// values, and assembles multi-security datasets with a parallel fetcher.
package history

import (
	"context"
	"runtime"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
	"gonum.org/v1/gonum/stat"

	"github.com/stockparfait/moexiss/iss"
	"github.com/stockparfait/moexiss/table"
)

// HistoryTable is the name of the table block in history responses.
const HistoryTable = "history"

// DateColumn is the trading date column, by which history endpoints paginate.
const DateColumn = "TRADEDATE"

// Record is a single security's end-of-day trading summary.
type Record struct {
	BoardID   string
	Security  string
	Date      table.Date
	Open      float64
	Low       float64
	High      float64
	Close     float64
	NumTrades float64
	Value     float64 // total value traded, in the instrument's currency
	Volume    float64 // total volume traded, in units of the instrument
}

func asFloat(v table.Value) (float64, error) {
	if v == nil {
		return 0.0, nil
	}
	switch x := v.(type) {
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0.0, errors.Reason("expected a numeric value, got %v", v)
}

// Records converts a history table to a slice of Record values. Null numeric
// cells convert to 0; a null trading date is an error.
func Records(t *table.Table) ([]Record, error) {
	type column struct {
		name string
		pos  int
	}
	names := []string{"BOARDID", "SECID", DateColumn, "OPEN", "LOW", "HIGH",
		"CLOSE", "NUMTRADES", "VALUE", "VOLUME"}
	columns := make([]column, len(names))
	for i, name := range names {
		pos, err := t.ColumnPosition(name)
		if err != nil {
			return nil, errors.Annotate(err, "not a history table")
		}
		columns[i] = column{name: name, pos: pos}
	}
	records := make([]Record, 0, t.RowCount())
	it := t.Rows()
	for i := 0; ; i++ {
		row, ok := it.Next()
		if !ok {
			break
		}
		var r Record
		var err error
		for _, c := range columns {
			v := row[c.pos]
			switch c.name {
			case "BOARDID":
				if s, ok := v.(string); ok {
					r.BoardID = s
				}
			case "SECID":
				if s, ok := v.(string); ok {
					r.Security = s
				}
			case DateColumn:
				d, ok := v.(table.Date)
				if !ok {
					return nil, errors.Reason("row %d has no trading date", i)
				}
				r.Date = d
			case "OPEN":
				r.Open, err = asFloat(v)
			case "LOW":
				r.Low, err = asFloat(v)
			case "HIGH":
				r.High, err = asFloat(v)
			case "CLOSE":
				r.Close, err = asFloat(v)
			case "NUMTRADES":
				r.NumTrades, err = asFloat(v)
			case "VALUE":
				r.Value, err = asFloat(v)
			case "VOLUME":
				r.Volume, err = asFloat(v)
			}
			if err != nil {
				return nil, errors.Annotate(err, "bad value in column %s of row %d",
					c.name, i)
			}
		}
		records = append(records, r)
	}
	return records, nil
}

// FetchSecurityTable downloads the full trading history table of a single
// security on the given engine, market and board, paginated by the trading
// date. Zero from / till dates leave the corresponding bound unset.
func FetchSecurityTable(ctx context.Context, engine, market, board, security string, from, till table.Date) (*table.Table, error) {
	p, err := iss.NewDatePagination(DateColumn)
	if err != nil {
		return nil, err
	}
	req := iss.NewRequest(HistoryTable,
		"history", "engines", engine, "markets", market,
		"boards", board, "securities", security).Paginate(p)
	if !from.IsZero() {
		req = req.Param("from", from)
	}
	if !till.IsZero() {
		req = req.Param("till", till)
	}
	tbl, err := req.Fetch(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch history of %s", security)
	}
	return tbl, nil
}

// FetchSecurity downloads the full trading history of a single security as a
// slice of Record values. See FetchSecurityTable for the parameters.
func FetchSecurity(ctx context.Context, engine, market, board, security string, from, till table.Date) ([]Record, error) {
	tbl, err := FetchSecurityTable(ctx, engine, market, board, security, from, till)
	if err != nil {
		return nil, err
	}
	return Records(tbl)
}

// Dataset is the trading history of a set of securities, keyed by the
// security ticker.
type Dataset struct {
	Records    map[string][]Record
	NumRecords int
}

// NewDataset creates an empty Dataset.
func NewDataset() *Dataset {
	return &Dataset{Records: make(map[string][]Record)}
}

type fetchResult struct {
	security string
	records  []Record
	err      error
}

// Fetch downloads the history of all the given securities in parallel and
// adds them to the dataset. It fails on the first security error.
func (d *Dataset) Fetch(ctx context.Context, engine, market, board string, securities []string, from, till table.Date) error {
	f := func(security string) fetchResult {
		records, err := FetchSecurity(ctx, engine, market, board, security, from, till)
		if err != nil {
			return fetchResult{security: security, err: err}
		}
		logging.Infof(ctx, "downloaded %d records of %s", len(records), security)
		return fetchResult{security: security, records: records}
	}
	pm := iterator.ParallelMap(ctx, 2*runtime.NumCPU(), iterator.FromSlice(securities), f)
	defer pm.Close()

	var firstErr error
	iterator.Reduce[fetchResult, int](pm, 0, func(r fetchResult, n int) int {
		if r.err != nil {
			if firstErr == nil {
				firstErr = errors.Annotate(r.err, "failed to fetch %s", r.security)
			}
			return n
		}
		d.Records[r.security] = r.records
		d.NumRecords += len(r.records)
		return n + 1
	})
	if firstErr != nil {
		return firstErr
	}
	return nil
}

// Stats are the summary statistics of a price series.
type Stats struct {
	Mean       float64
	StdDev     float64
	NumSamples int
}

// CloseStats computes the mean and standard deviation of the closing prices
// in the records, skipping zero (null) closes.
func CloseStats(records []Record) Stats {
	var closes []float64
	for _, r := range records {
		if r.Close > 0 {
			closes = append(closes, r.Close)
		}
	}
	s := Stats{NumSamples: len(closes)}
	if len(closes) == 0 {
		return s
	}
	if len(closes) < 2 {
		s.Mean = closes[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(closes, nil)
	return s
}
