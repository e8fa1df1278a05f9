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
	"sort"

	"github.com/stockparfait/errors"
)

// Pagination is the strategy for assembling a multi-page table result. It is
// implemented by exactly three types: LimitOnly, OffsetPagination and
// DatePagination, matching the three pagination contracts of the ISS API.
// The Request.Fetch call dispatches on the concrete type once per request.
type Pagination interface {
	// reservedKeys lists the query parameter names the strategy injects
	// itself; a caller query containing any of them is rejected.
	reservedKeys() []string
}

func checkLimitSizes(sizes []int) error {
	if len(sizes) == 0 {
		return errors.Reason("limit sizes must be a non-empty list")
	}
	for i, s := range sizes {
		if s <= 0 {
			return errors.Reason("limit sizes must be positive integers, got %d", s)
		}
		if i > 0 && s < sizes[i-1] {
			return errors.Reason("limit sizes must be sorted in ascending order")
		}
	}
	return nil
}

// snapLimit picks the smallest supported size >= target, falling back to the
// largest size when the target exceeds all of them.
func snapLimit(sizes []int, target int) int {
	idx := sort.SearchInts(sizes, target)
	if idx >= len(sizes) {
		return sizes[len(sizes)-1]
	}
	return sizes[idx]
}

// LimitOnly is the strategy for endpoints that accept only predetermined
// page-size values and return the entire result in a single logical page.
type LimitOnly struct {
	limitSizes []int
}

var _ Pagination = &LimitOnly{}

// NewLimitOnly creates a LimitOnly strategy with the given supported page
// sizes, which must be positive and sorted in ascending order.
func NewLimitOnly(limitSizes ...int) (*LimitOnly, error) {
	if err := checkLimitSizes(limitSizes); err != nil {
		return nil, err
	}
	return &LimitOnly{limitSizes: limitSizes}, nil
}

// LimitSizes returns the supported page sizes.
func (p *LimitOnly) LimitSizes() []int { return p.limitSizes }

func (p *LimitOnly) reservedKeys() []string { return []string{"limit"} }

// OffsetPagination is the strategy for endpoints that page through results
// with a running row offset. When no page sizes are given, the server's
// default page size is used and remains unknown to the client.
type OffsetPagination struct {
	limitSizes []int // empty = server default page size
}

var _ Pagination = &OffsetPagination{}

// NewOffsetPagination creates an OffsetPagination strategy. The page sizes,
// when given, must be positive and sorted in ascending order; without them
// the server decides the page size.
func NewOffsetPagination(limitSizes ...int) (*OffsetPagination, error) {
	if len(limitSizes) == 0 {
		return &OffsetPagination{}, nil
	}
	if err := checkLimitSizes(limitSizes); err != nil {
		return nil, err
	}
	return &OffsetPagination{limitSizes: limitSizes}, nil
}

// LimitSizes returns the supported page sizes; nil means the server default.
func (p *OffsetPagination) LimitSizes() []int { return p.limitSizes }

func (p *OffsetPagination) reservedKeys() []string {
	if len(p.limitSizes) > 0 {
		return []string{"limit", "start"}
	}
	return []string{"start"}
}

// DatePagination is the strategy for endpoints that page through results by
// a date lower bound: the next page starts one day past the maximum value of
// the date column seen on the current page.
type DatePagination struct {
	dateColumn string
}

var _ Pagination = &DatePagination{}

// NewDatePagination creates a DatePagination strategy over the named
// date-typed column.
func NewDatePagination(dateColumn string) (*DatePagination, error) {
	if dateColumn == "" {
		return nil, errors.Reason("date column must be a non-empty string")
	}
	return &DatePagination{dateColumn: dateColumn}, nil
}

// DateColumn returns the name of the paging date column.
func (p *DatePagination) DateColumn() string { return p.dateColumn }

func (p *DatePagination) reservedKeys() []string { return []string{"limit", "start"} }
