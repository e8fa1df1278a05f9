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

// Package iss implements the generic table API of the Moscow Exchange
// Informational & Statistical Server (MOEX ISS).
//
// Official documentation is at https://iss.moex.com/iss/reference/ .
//
// An ISS response bundles one or more named table blocks, each carrying its
// own column metadata alongside the row data. A Request targets one such
// block: caller query parameters are scoped as "<table>.<key>" on the wire,
// and "iss.only" narrows the response to the requested block. FetchTables
// downloads all blocks of a response at once, without scoping.
//
// ISS endpoints differ in how they page large results. The Pagination
// strategies mirror the three contracts found in the API: a single request
// with a snapped page size (LimitOnly), paging by a running row offset
// (OffsetPagination), and paging by advancing a date lower bound
// (DatePagination). Request.Fetch assembles all pages into a single
// table.Table transparently.
//
// The Client is injected into the context with UseClient or, for the
// token-authenticated endpoint, UseAuthClient. It limits the number of
// simultaneous in-flight requests.
package iss
