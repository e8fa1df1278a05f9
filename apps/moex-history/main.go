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

// Command moex-history downloads and prints the trading history of a
// security from the MOEX ISS API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	"github.com/stockparfait/moexiss/history"
	"github.com/stockparfait/moexiss/iss"
	"github.com/stockparfait/moexiss/table"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	Config   string // optional TOML config with the API token
	Engine   string
	Market   string
	Board    string
	Security string // required
	From     table.Date
	Till     table.Date
	CSV      bool // dump CSV format; default: text
	Stats    bool // print close price statistics instead of the table
	LogLevel logging.Level
}

func parseDateFlag(fs *flag.FlagSet, d *table.Date, name, usage string) {
	fs.Func(name, usage, func(s string) error {
		date, err := table.NewDateFromString(s)
		if err != nil {
			return err
		}
		*d = date
		return nil
	})
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("moex-history", flag.ContinueOnError)
	fs.StringVar(&flags.Config, "config", "", "TOML config file with the API token")
	fs.StringVar(&flags.Engine, "engine", "stock", "ISS trading engine")
	fs.StringVar(&flags.Market, "market", "shares", "market within the engine")
	fs.StringVar(&flags.Board, "board", "TQBR", "trading board")
	fs.StringVar(&flags.Security, "security", "", "security ticker (required)")
	parseDateFlag(fs, &flags.From, "from", "start date, YYYY-MM-DD")
	parseDateFlag(fs, &flags.Till, "till", "end date, YYYY-MM-DD")
	fs.BoolVar(&flags.CSV, "csv", false, "print table in CSV format; default: text")
	fs.BoolVar(&flags.Stats, "stats", false, "print close price statistics")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if flags.Security == "" {
		return nil, errors.Reason("missing required -security argument")
	}
	return &flags, nil
}

type Config struct {
	Token string `toml:"token"` // bearer token for the authenticated endpoint
	Lang  string `toml:"lang"`  // response language, "ru" (default) or "en"
}

func parseConfig(filePath string) (*Config, error) {
	var c Config
	if filePath == "" {
		return &c, nil
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	return &c, nil
}

func useClient(ctx context.Context, c *Config) context.Context {
	if c.Token != "" {
		return iss.UseAuthClient(ctx, c.Token, c.Lang)
	}
	return iss.UseClient(ctx, c.Lang)
}

func printData(ctx context.Context, flags *Flags, w io.Writer) error {
	tbl, err := history.FetchSecurityTable(ctx, flags.Engine, flags.Market,
		flags.Board, flags.Security, flags.From, flags.Till)
	if err != nil {
		return errors.Annotate(err, "failed to fetch history for %s", flags.Security)
	}
	if flags.Stats {
		records, err := history.Records(tbl)
		if err != nil {
			return errors.Annotate(err, "failed to convert history for %s",
				flags.Security)
		}
		s := history.CloseStats(records)
		_, err = fmt.Fprintf(w, "%s: mean close %.4f, stddev %.4f over %d samples\n",
			flags.Security, s.Mean, s.StdDev, s.NumSamples)
		return err
	}
	if flags.CSV {
		if err := tbl.WriteCSV(w, table.Params{}); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, table.Params{}); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	config, err := parseConfig(flags.Config)
	if err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
	ctx = useClient(ctx, config)

	if err := printData(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
