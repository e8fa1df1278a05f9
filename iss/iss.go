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

package iss

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"

	"github.com/stockparfait/moexiss/table"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the public ISS endpoint. It may be
// overwritten in tests before creating a new client.
var URL = "https://iss.moex.com/iss"

// AuthURL is the base URL of the authenticated endpoint used with a bearer
// token. It may be overwritten in tests before creating a new client.
var AuthURL = "https://apim.moex.com/iss"

// maxPages is the hard ceiling on the number of page fetches for a single
// table request, to bound a misbehaving server. Tests may lower it.
var maxPages = 10000

// maxConnections caps the number of simultaneous in-flight requests per
// client.
const maxConnections = 4

// Client for querying ISS tables.
type Client struct {
	baseURL   string
	authToken string // empty for the public endpoint
	lang      string // response language, "ru" or "en"
	sem       chan struct{}
}

func newClient(baseURL, authToken, lang string) *Client {
	if lang == "" {
		lang = "ru"
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		lang:      lang,
		sem:       make(chan struct{}, maxConnections),
	}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a client for the public ISS endpoint and injects it into
// the context. An empty lang defaults to "ru".
func UseClient(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(URL, "", lang))
}

// UseAuthClient creates a client for the authenticated endpoint with the
// given bearer token and injects it into the context. An empty lang defaults
// to "ru".
func UseAuthClient(ctx context.Context, authToken, lang string) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(AuthURL, authToken, lang))
}

// Params are the query parameters of a table request, keyed by the raw ISS
// parameter name. A nil value is skipped. Values render as their natural
// string form, except: bool as "1"/"0", table.Date as "YYYY-MM-DD", and
// table.Time / time.Time as "YYYY-MM-DD HH:MM:SS".
type Params map[string]interface{}

func formatParam(v interface{}) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case table.Date:
		return x.String()
	case table.Time:
		return x.String()
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (p Params) copy() Params {
	p2 := make(Params, len(p))
	for k, v := range p {
		p2[k] = v
	}
	return p2
}

// checkReserved fails when the caller query sets a parameter name the active
// pagination strategy injects itself.
func checkReserved(params Params, reserved []string) error {
	var conflicts []string
	for _, key := range reserved {
		if _, ok := params[key]; ok {
			conflicts = append(conflicts, key)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	sort.Strings(conflicts)
	return errors.Reason("query contains reserved pagination keys: %s",
		strings.Join(conflicts, ", "))
}

func (c *Client) headers() map[string]string {
	if c.authToken == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.authToken}
}

// acquire blocks until a request slot is available or the context is done.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// fetch downloads and decodes a single response of raw table blocks.
func (c *Client) fetch(ctx context.Context, path []string, query url.Values) (map[string]table.Raw, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, errors.Annotate(err, "request canceled")
	}
	defer c.release()

	query.Set("lang", c.lang)
	uri := c.baseURL + "/" + strings.Join(path, "/") + ".json"
	var res map[string]table.Raw
	if err := fetch.FetchJSON(ctx, uri, &res, query, c.headers()); err != nil {
		return nil, errors.Annotate(err, "failed to fetch URL %s", uri)
	}
	return res, nil
}

// FetchTables requests the given URL path and returns every table block in
// the response, keyed by table name. The query parameters are sent as-is,
// without table-name scoping.
func FetchTables(ctx context.Context, path []string, params Params) (map[string]*table.Table, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("FetchTables: no client in context")
	}
	query := make(url.Values)
	for key, value := range params {
		if value == nil {
			continue
		}
		query.Set(key, formatParam(value))
	}
	raws, err := client.fetch(ctx, path, query)
	if err != nil {
		return nil, errors.Annotate(err, "FetchTables: request failed")
	}
	res := make(map[string]*table.Table, len(raws))
	for name, raw := range raws {
		t, err := table.FromRaw(raw)
		if err != nil {
			return nil, errors.Annotate(err, "failed to parse table '%s'", name)
		}
		res[name] = t
	}
	return res, nil
}

// fetchTable requests a single page of the named table. Caller parameters
// are scoped as "<table>.<key>", and "iss.only" narrows the response to the
// one table. A positive limit truncates the result client-side.
func (c *Client) fetchTable(ctx context.Context, path []string, name string, params Params, limit int) (*table.Table, error) {
	query := make(url.Values)
	for key, value := range params {
		if value == nil {
			continue
		}
		query.Set(name+"."+key, formatParam(value))
	}
	query.Set("iss.only", name)

	raws, err := c.fetch(ctx, path, query)
	if err != nil {
		return nil, err
	}
	raw, ok := raws[name]
	if !ok {
		return nil, errors.Reason("response contains no table '%s'", name)
	}
	t, err := table.FromRaw(raw)
	if err != nil {
		return nil, errors.Annotate(err, "failed to parse table '%s'", name)
	}
	if limit > 0 && t.RowCount() > limit {
		return t.Take(limit)
	}
	return t, nil
}

// fetchLimitOnly issues exactly one page request with the page size snapped
// up to the smallest supported size covering the limit.
func (c *Client) fetchLimitOnly(ctx context.Context, path []string, name string, params Params, p *LimitOnly, limit int) (*table.Table, error) {
	if err := checkReserved(params, p.reservedKeys()); err != nil {
		return nil, err
	}
	sizes := p.limitSizes
	reqLimit := sizes[len(sizes)-1]
	if limit > 0 && limit < reqLimit {
		reqLimit = snapLimit(sizes, limit)
	}
	query := params.copy()
	query["limit"] = reqLimit
	return c.fetchTable(ctx, path, name, query, limit)
}

// fetchOffset pages through the table with a running row offset until the
// server runs out of rows or the limit is reached.
func (c *Client) fetchOffset(ctx context.Context, path []string, name string, params Params, p *OffsetPagination, limit int) (*table.Table, error) {
	if err := checkReserved(params, p.reservedKeys()); err != nil {
		return nil, err
	}
	offset := 0
	remaining := limit // 0 = unbounded
	sizes := p.limitSizes

	var merged *table.Table
	for i := 0; i < maxPages; i++ {
		query := params.copy()
		query["start"] = offset
		reqLimit := 0
		if len(sizes) > 0 {
			reqLimit = sizes[len(sizes)-1]
			if remaining > 0 && remaining < reqLimit {
				reqLimit = snapLimit(sizes, remaining)
			}
			query["limit"] = reqLimit
		}
		page, err := c.fetchTable(ctx, path, name, query, 0)
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch page %d", i+1)
		}
		if merged == nil {
			if merged, err = page.Take(0); err != nil {
				return nil, err
			}
		}
		rawCount := page.RowCount()
		logging.Infof(ctx, "MOEX ISS: fetched page %d of '%s' with %d rows at offset %d",
			i+1, name, rawCount, offset)
		if rawCount == 0 {
			return merged, nil
		}
		pageCount := rawCount
		if remaining > 0 && pageCount > remaining {
			if page, err = page.Take(remaining); err != nil {
				return nil, err
			}
			pageCount = remaining
		}
		merged.Extend(page)
		if remaining > 0 {
			remaining -= pageCount
			if remaining == 0 {
				return merged, nil
			}
		}
		if reqLimit > 0 && rawCount < reqLimit {
			// Server returned fewer rows than requested: the end of the table.
			return merged, nil
		}
		next := offset + rawCount
		if next <= offset {
			return nil, errors.Reason("offset pagination did not advance")
		}
		offset = next
	}
	return nil, errors.Reason("pagination exceeded maximum page count (%d)", maxPages)
}

// fetchDate pages through the table by advancing a date lower bound one day
// past the maximum value of the paging column on each page.
func (c *Client) fetchDate(ctx context.Context, path []string, name string, params Params, p *DatePagination, limit int) (*table.Table, error) {
	if err := checkReserved(params, p.reservedKeys()); err != nil {
		return nil, err
	}
	var boundary table.Date // zero = use the caller's own "from", if any
	remaining := limit

	var merged *table.Table
	for i := 0; i < maxPages; i++ {
		query := params.copy()
		if !boundary.IsZero() {
			query["from"] = boundary
		}
		page, err := c.fetchTable(ctx, path, name, query, 0)
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch page %d", i+1)
		}
		if merged == nil {
			if merged, err = page.Take(0); err != nil {
				return nil, err
			}
		}
		pageCount := page.RowCount()
		logging.Infof(ctx, "MOEX ISS: fetched page %d of '%s' with %d rows",
			i+1, name, pageCount)
		if pageCount == 0 {
			return merged, nil
		}
		if remaining > 0 && pageCount > remaining {
			if page, err = page.Take(remaining); err != nil {
				return nil, err
			}
			pageCount = remaining
		}
		merged.Extend(page)
		if remaining > 0 {
			remaining -= pageCount
			if remaining == 0 {
				return merged, nil
			}
		}
		maxDate, err := maxPageDate(page, p.dateColumn)
		if err != nil {
			return nil, err
		}
		next := maxDate.AddDays(1)
		if !boundary.IsZero() && !next.After(boundary) {
			return nil, errors.Reason("date pagination boundary did not advance")
		}
		boundary = next
	}
	return nil, errors.Reason("pagination exceeded maximum page count (%d)", maxPages)
}

// maxPageDate finds the maximum non-null date in the paging column of a
// non-empty page.
func maxPageDate(page *table.Table, dateColumn string) (table.Date, error) {
	pos, err := page.ColumnPosition(dateColumn)
	if err != nil {
		return table.Date{}, errors.Annotate(err, "bad date pagination column")
	}
	var maxDate table.Date
	it := page.Rows()
	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		if row[pos] == nil {
			continue
		}
		d, ok := row[pos].(table.Date)
		if !ok {
			return table.Date{}, errors.Reason(
				"column '%s' must contain date values", dateColumn)
		}
		if maxDate.IsZero() || d.After(maxDate) {
			maxDate = d
		}
	}
	if maxDate.IsZero() {
		return table.Date{}, errors.Reason(
			"column '%s' contains no date values", dateColumn)
	}
	return maxDate, nil
}

// Request is a builder for an ISS table request. Its builder methods create
// a copy, leaving the original intact.
type Request struct {
	path     []string
	table    string
	params   Params
	paginate Pagination
	limit    int
}

// NewRequest creates a request for the named table block at the given URL
// path, e.g. NewRequest("securities", "securities") or
// NewRequest("history", "history", "engines", "stock", "markets", "shares").
func NewRequest(tableName string, path ...string) *Request {
	return &Request{path: path, table: tableName}
}

// Copy creates a deep copy of the request. It is primarily used in its
// builder methods.
func (r *Request) Copy() *Request {
	r2 := Request{
		path:     r.path,
		table:    r.table,
		params:   r.params.copy(),
		paginate: r.paginate,
		limit:    r.limit,
	}
	return &r2
}

// Param adds a query parameter, e.g. Param("till", table.NewDate(2024, 1, 31)).
// The parameter name is scoped with the table name on the wire.
func (r *Request) Param(key string, value interface{}) *Request {
	r2 := r.Copy()
	r2.params[key] = value
	return r2
}

// Paginate sets the pagination strategy; nil (the default) issues a single
// page request with no extra parameters.
func (r *Request) Paginate(p Pagination) *Request {
	r2 := r.Copy()
	r2.paginate = p
	return r2
}

// Limit caps the total number of rows in the assembled result; 0 (the
// default) means no cap.
func (r *Request) Limit(n int) *Request {
	r2 := r.Copy()
	r2.limit = n
	return r2
}

// Fetch executes the request using the Client from the context, assembling
// all pages into a single table according to the pagination strategy. On any
// failure no partial result is returned.
func (r *Request) Fetch(ctx context.Context) (*table.Table, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("Request.Fetch: no client in context")
	}
	if r.limit < 0 {
		return nil, errors.Reason("limit must be a positive integer, got %d", r.limit)
	}
	switch p := r.paginate.(type) {
	case nil:
		return client.fetchTable(ctx, r.path, r.table, r.params, r.limit)
	case *LimitOnly:
		return client.fetchLimitOnly(ctx, r.path, r.table, r.params, p, r.limit)
	case *OffsetPagination:
		return client.fetchOffset(ctx, r.path, r.table, r.params, p, r.limit)
	case *DatePagination:
		return client.fetchDate(ctx, r.path, r.table, r.params, p, r.limit)
	}
	return nil, errors.Reason("unsupported pagination type %T", r.paginate)
}

// TestResponse generates the JSON string of an ISS response with a single
// table block, in the format returned by the API. For use in tests.
func TestResponse(name string, metadata map[string]table.ColumnMeta, columns []string, data [][]interface{}) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		name: map[string]interface{}{
			"metadata": metadata,
			"columns":  columns,
			"data":     data,
		},
	})
	return string(body), err
}
