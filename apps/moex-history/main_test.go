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

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"

	"github.com/stockparfait/moexiss/history"
	"github.com/stockparfait/moexiss/iss"
	"github.com/stockparfait/moexiss/table"

	. "github.com/smartystreets/goconvey/convey"
)

var testMeta = map[string]table.ColumnMeta{
	"BOARDID":   {Type: table.TypeString},
	"SECID":     {Type: table.TypeString},
	"TRADEDATE": {Type: table.TypeDate},
	"OPEN":      {Type: table.TypeDouble},
	"LOW":       {Type: table.TypeDouble},
	"HIGH":      {Type: table.TypeDouble},
	"CLOSE":     {Type: table.TypeDouble},
	"NUMTRADES": {Type: table.TypeInt64},
	"VALUE":     {Type: table.TypeDouble},
	"VOLUME":    {Type: table.TypeDouble},
}

var testColumns = []string{"BOARDID", "SECID", "TRADEDATE", "OPEN", "LOW",
	"HIGH", "CLOSE", "NUMTRADES", "VALUE", "VOLUME"}

func testServer() *httptest.Server {
	rows := [][]interface{}{
		{"TQBR", "GAZP", "2024-06-14", 119.5, 118.5, 121.5, 120.5, 100, 1000.0, 10.0},
		{"TQBR", "GAZP", "2024-06-15", 120.5, 119.5, 123.5, 122.5, 100, 1000.0, 10.0},
	}
	return httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			data := rows
			if r.URL.Query().Has("history.from") {
				data = [][]interface{}{}
			}
			body, err := iss.TestResponse(history.HistoryTable, testMeta,
				testColumns, data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Write([]byte(body))
		}))
}

func TestMain(t *testing.T) {
	t.Parallel()

	Convey("parseFlags", t, func() {
		Convey("with all the flags", func() {
			flags, err := parseFlags([]string{
				"-config", "path/to/config.toml", "-security", "GAZP",
				"-from", "2024-01-01", "-till", "2024-06-30",
				"-log-level", "warning", "-csv"})
			So(err, ShouldBeNil)
			So(flags.Config, ShouldEqual, "path/to/config.toml")
			So(flags.Engine, ShouldEqual, "stock")
			So(flags.Market, ShouldEqual, "shares")
			So(flags.Board, ShouldEqual, "TQBR")
			So(flags.Security, ShouldEqual, "GAZP")
			So(flags.From, ShouldResemble, table.NewDate(2024, 1, 1))
			So(flags.Till, ShouldResemble, table.NewDate(2024, 6, 30))
			So(flags.LogLevel, ShouldEqual, logging.Warning)
			So(flags.CSV, ShouldBeTrue)
		})

		Convey("security is required", func() {
			_, err := parseFlags([]string{"-board", "TQBR"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "-security")
		})
	})

	Convey("parseConfig", t, func() {
		tmpdir := t.TempDir()
		filePath := filepath.Join(tmpdir, "config.toml")
		So(os.WriteFile(filePath, []byte(`token = "sekret"
lang = "en"
`), 0644), ShouldBeNil)

		c, err := parseConfig(filePath)
		So(err, ShouldBeNil)
		So(c, ShouldResemble, &Config{Token: "sekret", Lang: "en"})

		Convey("empty path is an empty config", func() {
			c, err := parseConfig("")
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{})
		})

		Convey("missing file is an error", func() {
			_, err := parseConfig(filepath.Join(tmpdir, "nonexistent.toml"))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("printData works", t, func() {
		server := testServer()
		defer server.Close()
		ctx := fetch.UseClient(context.Background(), server.Client())
		iss.URL = server.URL
		ctx = useClient(ctx, &Config{})

		Convey("CSV output", func() {
			flags, err := parseFlags([]string{"-security", "GAZP", "-csv"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(printData(ctx, flags, &buf), ShouldBeNil)
			So("\n"+buf.String(), ShouldEqual, `
BOARDID,SECID,TRADEDATE,OPEN,LOW,HIGH,CLOSE,NUMTRADES,VALUE,VOLUME
TQBR,GAZP,2024-06-14,119.5,118.5,121.5,120.5,100,1000,10
TQBR,GAZP,2024-06-15,120.5,119.5,123.5,122.5,100,1000,10
`)
		})

		Convey("stats output", func() {
			flags, err := parseFlags([]string{"-security", "GAZP", "-stats"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(printData(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldEqual,
				"GAZP: mean close 121.5000, stddev 1.4142 over 2 samples\n")
		})
	})
}
